package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/gridwatch/netpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Session factory — credential → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

// SessionParams carries everything needed to open one SNMPv3 session. The
// passwords are already decrypted; SessionParams values must not be logged.
type SessionParams struct {
	Target  string
	Port    uint16
	Timeout time.Duration
	Retries int

	Username      string
	SecurityLevel models.SecurityLevel
	AuthProtocol  string // sha, sha-224, sha-256, sha-384, sha-512, none
	AuthPassword  string
	PrivProtocol  string // aes-128, aes-192, aes-256, none
	PrivPassword  string
	ContextName   string
}

// NewSession creates and connects a USM session. The caller owns the session
// and must Close its connection; sessions are never shared between concurrent
// device polls.
func NewSession(p SessionParams) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:        p.Target,
		Port:          p.Port,
		Version:       gosnmp.Version3,
		SecurityModel: gosnmp.UserSecurityModel,
		Timeout:       p.Timeout,
		Retries:       p.Retries,
		MaxOids:       60,
		ContextName:   p.ContextName,
		MsgFlags:      msgFlags(p.SecurityLevel),
		SecurityParameters: &gosnmp.UsmSecurityParameters{
			UserName:                 p.Username,
			AuthenticationProtocol:   mapAuthProto(p.AuthProtocol),
			AuthenticationPassphrase: p.AuthPassword,
			PrivacyProtocol:          mapPrivProto(p.PrivProtocol),
			PrivacyPassphrase:        p.PrivPassword,
		},
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s:%d: %w", p.Target, p.Port, err)
	}
	return g, nil
}

func msgFlags(level models.SecurityLevel) gosnmp.SnmpV3MsgFlags {
	switch level {
	case models.AuthPriv:
		return gosnmp.AuthPriv
	case models.AuthNoPriv:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sha":
		return gosnmp.SHA
	case "sha-224", "sha224":
		return gosnmp.SHA224
	case "sha-256", "sha256":
		return gosnmp.SHA256
	case "sha-384", "sha384":
		return gosnmp.SHA384
	case "sha-512", "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aes-128", "aes128", "aes":
		return gosnmp.AES
	case "aes-192", "aes192":
		return gosnmp.AES192
	case "aes-256", "aes256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}
