// Package models defines the core data structures shared across all layers of
// NetPulse. These types represent the canonical in-memory form of all
// monitored-device, telemetry, syslog, and compliance data; every other
// package depends on this package and nothing here depends on any other
// internal package.
package models

import (
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Vendor taxonomy
// ─────────────────────────────────────────────────────────────────────────────

// VendorKind is the closed set of vendor families the collector knows how to
// poll. Vendor-specific OID tables are keyed by this type.
type VendorKind string

const (
	VendorCisco     VendorKind = "cisco"
	VendorCiscoNXOS VendorKind = "cisco_nxos"
	VendorJuniper   VendorKind = "juniper"
	VendorPaloAlto  VendorKind = "paloalto"
	VendorFortinet  VendorKind = "fortinet"
	VendorArista    VendorKind = "arista"
	VendorSophos    VendorKind = "sophos"
	VendorGeneric   VendorKind = "generic"
)

// NormalizeVendor maps a free-form vendor string (as stored on the device row)
// to a VendorKind. Unknown vendors fall back to VendorGeneric, which polls
// HOST-RESOURCES-MIB for CPU and disk and UCD-SNMP-MIB for memory and swap.
func NormalizeVendor(vendor string) VendorKind {
	v := strings.ToLower(strings.TrimSpace(vendor))
	switch {
	case v == "":
		return VendorGeneric
	case strings.Contains(v, "cisco"):
		if strings.Contains(v, "nexus") || strings.Contains(v, "nxos") || strings.Contains(v, "nx-os") {
			return VendorCiscoNXOS
		}
		return VendorCisco
	case strings.Contains(v, "nexus") || strings.Contains(v, "nxos") || strings.Contains(v, "nx-os"):
		return VendorCiscoNXOS
	case strings.Contains(v, "juniper") || strings.Contains(v, "junos"):
		return VendorJuniper
	case strings.Contains(v, "palo") || strings.Contains(v, "pan-os"):
		return VendorPaloAlto
	case strings.Contains(v, "fortinet") || strings.Contains(v, "fortigate"):
		return VendorFortinet
	case strings.Contains(v, "arista"):
		return VendorArista
	case strings.Contains(v, "sophos") || strings.Contains(v, "sfos"):
		return VendorSophos
	default:
		return VendorGeneric
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Device
// ─────────────────────────────────────────────────────────────────────────────

// DeviceStatus is the overall reachability state of a device as derived from
// the most recent poll.
type DeviceStatus string

const (
	StatusUp      DeviceStatus = "up"
	StatusDown    DeviceStatus = "down"
	StatusUnknown DeviceStatus = "unknown"
)

// Device is one monitored network element from npm.devices.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	Vendor    string `json:"vendor,omitempty"`
	SNMPPort  int    `json:"snmp_port"`

	PollICMP bool `json:"poll_icmp"`
	PollSNMP bool `json:"poll_snmp"`
	IsActive bool `json:"is_active"`

	// CredentialID references npm.snmpv3_credentials. Empty when the device
	// has no SNMPv3 credential assigned.
	CredentialID string `json:"credential_id,omitempty"`

	Status     DeviceStatus `json:"status"`
	ICMPStatus DeviceStatus `json:"icmp_status"`
	SNMPStatus DeviceStatus `json:"snmp_status"`

	LastPoll     *time.Time `json:"last_poll,omitempty"`
	LastICMPPoll *time.Time `json:"last_icmp_poll,omitempty"`
	LastSNMPPoll *time.Time `json:"last_snmp_poll,omitempty"`
}

// VendorKind returns the normalized vendor family for OID resolution.
func (d *Device) VendorKind() VendorKind {
	return NormalizeVendor(d.Vendor)
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 credentials
// ─────────────────────────────────────────────────────────────────────────────

// SecurityLevel is the SNMPv3 USM security level.
type SecurityLevel string

const (
	NoAuthNoPriv SecurityLevel = "noAuthNoPriv"
	AuthNoPriv   SecurityLevel = "authNoPriv"
	AuthPriv     SecurityLevel = "authPriv"
)

// SNMPCredential is one row from npm.snmpv3_credentials. The password fields
// hold the AES-256-GCM ciphertext in iv_hex:tag_hex:ct_hex form; the collector
// decrypts them just before session construction and never logs plaintext.
type SNMPCredential struct {
	ID            string        `json:"id"`
	Username      string        `json:"username"`
	SecurityLevel SecurityLevel `json:"security_level"`

	// AuthProtocol: "sha", "sha-224", "sha-256", "sha-384", "sha-512", "none".
	AuthProtocol string `json:"auth_protocol,omitempty"`
	// PrivProtocol: "aes-128", "aes-192", "aes-256", "none".
	PrivProtocol string `json:"priv_protocol,omitempty"`

	ContextName string `json:"context_name,omitempty"`

	AuthPasswordEncrypted string `json:"-"`
	PrivPasswordEncrypted string `json:"-"`
}
