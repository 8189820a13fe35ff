package models

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Device metrics
// ─────────────────────────────────────────────────────────────────────────────

// DeviceMetrics is one point-in-time sample for a device, produced by the
// collector and inserted append-only into npm.device_metrics. Optional fields
// are pointers: nil means the value could not be collected this cycle (soft
// failure), which downstream stores as NULL rather than zero.
type DeviceMetrics struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// ICMP
	ICMPReachable         *bool    `json:"icmp_reachable,omitempty"`
	ICMPLatencyMs         *float64 `json:"icmp_latency_ms,omitempty"`
	ICMPPacketLossPercent *float64 `json:"icmp_packet_loss_percent,omitempty"`

	// SNMP system
	CPUUtilization    *float64 `json:"cpu_utilization,omitempty"`
	MemoryUtilization *float64 `json:"memory_utilization,omitempty"`
	MemoryTotalBytes  *int64   `json:"memory_total_bytes,omitempty"`
	MemoryUsedBytes   *int64   `json:"memory_used_bytes,omitempty"`
	DiskUtilization   *float64 `json:"disk_utilization,omitempty"`
	DiskTotalBytes    *int64   `json:"disk_total_bytes,omitempty"`
	DiskUsedBytes     *int64   `json:"disk_used_bytes,omitempty"`
	SwapUtilization   *float64 `json:"swap_utilization,omitempty"`
	SwapTotalBytes    *int64   `json:"swap_total_bytes,omitempty"`
	UptimeSeconds     *int64   `json:"uptime_seconds,omitempty"`

	// Interface summary, aggregated over the ifTable walk.
	InterfaceCount int    `json:"interface_count"`
	InterfacesUp   int    `json:"interfaces_up"`
	InterfacesDown int    `json:"interfaces_down"`
	TotalInOctets  uint64 `json:"total_in_octets"`
	TotalOutOctets uint64 `json:"total_out_octets"`
	TotalInErrors  uint64 `json:"total_in_errors"`
	TotalOutErrors uint64 `json:"total_out_errors"`

	// ServicesStatus maps service name → running, for vendors that expose a
	// per-service status table (Sophos).
	ServicesStatus map[string]bool `json:"services_status,omitempty"`

	// IsAvailable is true when the device answered ICMP or reported uptime.
	IsAvailable bool `json:"is_available"`
}

// Available reports the availability rule applied by the collector:
// a device is available when ICMP answered or SNMP returned a nonzero uptime.
func (m *DeviceMetrics) Available() bool {
	if m.ICMPReachable != nil && *m.ICMPReachable {
		return true
	}
	return m.UptimeSeconds != nil && *m.UptimeSeconds > 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Interface metrics
// ─────────────────────────────────────────────────────────────────────────────

// IfStatus is an interface admin or oper state as reported by IF-MIB
// (1 = up, 2 = down, anything else = unknown).
type IfStatus string

const (
	IfUp      IfStatus = "up"
	IfDown    IfStatus = "down"
	IfUnknown IfStatus = "unknown"
)

// IfStatusFromInt converts an IF-MIB ifAdminStatus / ifOperStatus integer.
func IfStatusFromInt(v int) IfStatus {
	switch v {
	case 1:
		return IfUp
	case 2:
		return IfDown
	default:
		return IfUnknown
	}
}

// InterfaceSample is the per-interface result of one ifTable walk row: the
// dimension attributes used to upsert npm.interfaces plus the counters
// inserted into npm.interface_metrics.
type InterfaceSample struct {
	IfIndex     int      `json:"if_index"`
	Name        string   `json:"name"`
	AdminStatus IfStatus `json:"admin_status"`
	OperStatus  IfStatus `json:"oper_status"`

	InOctets    uint64 `json:"in_octets"`
	OutOctets   uint64 `json:"out_octets"`
	InErrors    uint64 `json:"in_errors"`
	OutErrors   uint64 `json:"out_errors"`
	InDiscards  uint64 `json:"in_discards"`
	OutDiscards uint64 `json:"out_discards"`

	// SpeedMbps comes from ifHighSpeed when available, else ifSpeed / 1e6.
	SpeedMbps *int64 `json:"speed_mbps,omitempty"`
}

// PollResult is everything one collector run produced for one device:
// the device sample, the per-interface samples, and system identity fields.
// The device status update does not write the identity fields.
type PollResult struct {
	DeviceID   string            `json:"device_id"`
	Metrics    DeviceMetrics     `json:"metrics"`
	Interfaces []InterfaceSample `json:"interfaces"`

	// System identity scalars (SNMPv2-MIB), populated when SNMP responded.
	SysName     string `json:"sys_name,omitempty"`
	SysDescr    string `json:"sys_descr,omitempty"`
	SysContact  string `json:"sys_contact,omitempty"`
	SysLocation string `json:"sys_location,omitempty"`

	// Per-protocol outcomes for the device status update.
	ICMPStatus DeviceStatus `json:"icmp_status"`
	SNMPStatus DeviceStatus `json:"snmp_status"`
}

// OverallStatus derives the device status column from the per-protocol
// outcomes: up if anything answered, down if something was tried and failed,
// unknown when nothing was attempted.
func (r *PollResult) OverallStatus() DeviceStatus {
	if r.ICMPStatus == StatusUp || r.SNMPStatus == StatusUp {
		return StatusUp
	}
	if r.ICMPStatus == StatusDown || r.SNMPStatus == StatusDown {
		return StatusDown
	}
	return StatusUnknown
}
