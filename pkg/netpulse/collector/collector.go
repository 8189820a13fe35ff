// Package collector implements the SNMPv3 device collector: for one device it
// runs the ICMP probe, opens a USM session from decrypted credentials, reads
// the vendor-resolved scalar OIDs, walks the interface table, and assembles a
// models.PollResult.
//
// Per-device ordering: ICMP → uptime → CPU → memory → interface count → disk
// → interface walk → vendor services. Every SNMP read failure is soft — the
// field stays unset and the poll continues; only the scheduler decides what
// to do with the aggregate outcome.
package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/crypto"
	"github.com/gridwatch/netpulse/snmp/pdu"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config bounds the per-device SNMP work.
type Config struct {
	// SNMPTimeout applies to each GET/GETNEXT round-trip. Default 5 s.
	SNMPTimeout time.Duration
	// SNMPRetries is the retry count per request. Default 2.
	SNMPRetries int
	// WalkMaxRows caps the interface walk. Default 200.
	WalkMaxRows int
	// PingCount / PingTimeout configure the ICMP probe. Defaults 3 / 2 s.
	PingCount   int
	PingTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.SNMPTimeout <= 0 {
		c.SNMPTimeout = 5 * time.Second
	}
	if c.SNMPRetries <= 0 {
		c.SNMPRetries = 2
	}
	if c.WalkMaxRows <= 0 {
		c.WalkMaxRows = 200
	}
	if c.PingCount <= 0 {
		c.PingCount = 3
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
}

// SNMPClient is the subset of *gosnmp.GoSNMP the collector uses. Tests inject
// a fake; production wraps a live session.
type SNMPClient interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	GetNext(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}

// Dialer opens an SNMP session for one device.
type Dialer func(SessionParams) (SNMPClient, error)

// liveSession adapts *gosnmp.GoSNMP to SNMPClient.
type liveSession struct{ *gosnmp.GoSNMP }

func (s liveSession) Close() error {
	if s.Conn != nil {
		return s.Conn.Close()
	}
	return nil
}

// DefaultDialer opens a real USM session.
func DefaultDialer(p SessionParams) (SNMPClient, error) {
	g, err := NewSession(p)
	if err != nil {
		return nil, err
	}
	return liveSession{g}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Collector
// ─────────────────────────────────────────────────────────────────────────────

// Collector polls devices. One Collector serves all devices; each Poll call
// builds its own session, so concurrent polls never share SNMP state.
type Collector struct {
	cfg    Config
	cipher *crypto.CredentialCipher
	pinger *Pinger
	dial   Dialer
	logger *slog.Logger
}

// New constructs a Collector. cipher may be nil when SNMP polling is disabled
// fleet-wide; devices with credentials then record ICMP-only metrics.
func New(cfg Config, cipher *crypto.CredentialCipher, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.withDefaults()
	return &Collector{
		cfg:    cfg,
		cipher: cipher,
		pinger: NewPinger(cfg.PingCount, cfg.PingTimeout),
		dial:   DefaultDialer,
		logger: logger,
	}
}

// SetDialer replaces the session dialer. Used in tests.
func (c *Collector) SetDialer(d Dialer) { c.dial = d }

// SetPingRunner replaces the ping subprocess runner. Used in tests.
func (c *Collector) SetPingRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	c.pinger.runCommand = run
}

// Poll runs one full collection cycle for device. It never returns an error:
// per-protocol failures land in the result's status fields and unset metric
// fields.
func (c *Collector) Poll(ctx context.Context, device *models.Device, cred *models.SNMPCredential) *models.PollResult {
	ip := StripCIDR(device.IPAddress)

	res := &models.PollResult{
		DeviceID: device.ID,
		Metrics: models.DeviceMetrics{
			DeviceID:  device.ID,
			Timestamp: time.Now().UTC(),
		},
		ICMPStatus: models.StatusUnknown,
		SNMPStatus: models.StatusUnknown,
	}

	if device.PollICMP {
		c.pollICMP(ctx, ip, res)
	}
	if device.PollSNMP {
		c.pollSNMP(ctx, device, cred, ip, res)
	}

	res.Metrics.IsAvailable = res.Metrics.Available()
	return res
}

// ─────────────────────────────────────────────────────────────────────────────
// ICMP
// ─────────────────────────────────────────────────────────────────────────────

func (c *Collector) pollICMP(ctx context.Context, ip string, res *models.PollResult) {
	ping := c.pinger.Ping(ctx, ip)

	reachable := ping.Reachable
	loss := ping.PacketLossPct
	res.Metrics.ICMPReachable = &reachable
	res.Metrics.ICMPPacketLossPercent = &loss
	if ping.Reachable {
		lat := ping.LatencyMs
		res.Metrics.ICMPLatencyMs = &lat
		res.ICMPStatus = models.StatusUp
	} else {
		res.ICMPStatus = models.StatusDown
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMP
// ─────────────────────────────────────────────────────────────────────────────

func (c *Collector) pollSNMP(ctx context.Context, device *models.Device, cred *models.SNMPCredential, ip string, res *models.PollResult) {
	if cred == nil {
		c.logger.Debug("collector: no credential, skipping snmp", "device", device.Name)
		return
	}

	params, err := c.sessionParams(device, cred, ip)
	if err != nil {
		// Credential failure: SNMP section skipped, ICMP results stand.
		c.logger.Warn("collector: credential unusable",
			"device", device.Name, "error", err.Error())
		return
	}

	sess, err := c.dial(params)
	if err != nil {
		c.logger.Warn("collector: snmp connect failed",
			"device", device.Name, "error", err.Error())
		res.SNMPStatus = models.StatusDown
		return
	}
	defer sess.Close()

	profile := ProfileFor(device.VendorKind())

	// Uptime first: it doubles as the reachability probe for SNMP.
	if ticks, ok := c.getUint(sess, OIDSysUpTime); ok {
		secs := int64(ticks / 100) // TimeTicks are hundredths of seconds
		res.Metrics.UptimeSeconds = &secs
		res.SNMPStatus = models.StatusUp
	} else {
		res.SNMPStatus = models.StatusDown
	}

	c.collectIdentity(sess, res)
	c.collectCPU(sess, profile, res)
	c.collectMemory(sess, profile.Memory, res)

	if n, ok := c.getUint(sess, OIDIfNumber); ok && res.SNMPStatus != models.StatusUp && n > 0 {
		res.SNMPStatus = models.StatusUp
	}

	c.collectDisk(sess, profile.Disk, res)
	c.collectSwap(sess, profile.Swap, res)
	c.collectInterfaces(ctx, sess, res)

	if len(profile.Services) > 0 {
		c.collectServices(sess, profile.Services, res)
	}
}

func (c *Collector) sessionParams(device *models.Device, cred *models.SNMPCredential, ip string) (SessionParams, error) {
	params := SessionParams{
		Target:        ip,
		Port:          uint16(device.SNMPPort),
		Timeout:       c.cfg.SNMPTimeout,
		Retries:       c.cfg.SNMPRetries,
		Username:      cred.Username,
		SecurityLevel: cred.SecurityLevel,
		AuthProtocol:  cred.AuthProtocol,
		PrivProtocol:  cred.PrivProtocol,
		ContextName:   cred.ContextName,
	}
	if params.Port == 0 {
		params.Port = 161
	}

	if c.cipher == nil {
		if cred.AuthPasswordEncrypted != "" || cred.PrivPasswordEncrypted != "" {
			return params, fmt.Errorf("no credential cipher configured")
		}
		return params, nil
	}

	auth, err := c.cipher.Decrypt(cred.AuthPasswordEncrypted)
	if err != nil {
		return params, fmt.Errorf("decrypt auth password: %w", err)
	}
	priv, err := c.cipher.Decrypt(cred.PrivPasswordEncrypted)
	if err != nil {
		return params, fmt.Errorf("decrypt priv password: %w", err)
	}
	params.AuthPassword = auth
	params.PrivPassword = priv
	return params, nil
}

// collectIdentity reads the SNMPv2-MIB system strings in one GET.
func (c *Collector) collectIdentity(sess SNMPClient, res *models.PollResult) {
	pkt, err := sess.Get([]string{OIDSysName, OIDSysDescr, OIDSysContact, OIDSysLocation})
	if err != nil {
		return
	}
	for _, vb := range pkt.Variables {
		s, err := pdu.String(vb)
		if err != nil {
			continue
		}
		switch pdu.NormalizeOID(vb.Name) {
		case OIDSysName:
			res.SysName = s
		case OIDSysDescr:
			res.SysDescr = s
		case OIDSysContact:
			res.SysContact = s
		case OIDSysLocation:
			res.SysLocation = s
		}
	}
}

// collectCPU tries the vendor CPU candidates in order; the first value inside
// [0,100] wins. Out-of-range values are data errors and are discarded.
func (c *Collector) collectCPU(sess SNMPClient, profile VendorProfile, res *models.PollResult) {
	for _, oid := range profile.CPUOIDs {
		v, ok := c.getFloat(sess, oid)
		if !ok {
			continue
		}
		if v < 0 || v > 100 {
			c.logger.Debug("collector: cpu value out of range", "oid", oid, "value", v)
			continue
		}
		res.Metrics.CPUUtilization = &v
		return
	}
}

func (c *Collector) collectMemory(sess SNMPClient, spec MemorySpec, res *models.PollResult) {
	switch spec.Mode {
	case MemPercent:
		if v, ok := c.getFloat(sess, spec.PercentOID); ok && v >= 0 && v <= 100 {
			res.Metrics.MemoryUtilization = &v
		}
		if spec.TotalOID != "" {
			if t, ok := c.getUint(sess, spec.TotalOID); ok {
				total := int64(t) * scaleOr1(spec.TotalScale)
				res.Metrics.MemoryTotalBytes = &total
				if res.Metrics.MemoryUtilization != nil {
					used := int64(float64(total) * *res.Metrics.MemoryUtilization / 100)
					res.Metrics.MemoryUsedBytes = &used
				}
			}
		}

	case MemUsedFree:
		used, okU := c.getUint(sess, spec.UsedOID)
		free, okF := c.getUint(sess, spec.FreeOID)
		if !okU || !okF || used+free == 0 {
			return
		}
		total := int64(used + free)
		usedB := int64(used)
		pct := float64(used) / float64(used+free) * 100
		res.Metrics.MemoryTotalBytes = &total
		res.Metrics.MemoryUsedBytes = &usedB
		res.Metrics.MemoryUtilization = &pct

	case MemTotalKiB:
		total, okT := c.getUint(sess, spec.TotalOID)
		avail, okA := c.getUint(sess, spec.AvailOID)
		if !okT || total == 0 {
			return
		}
		// UCD values are KiB.
		totalB := int64(total) * 1024
		res.Metrics.MemoryTotalBytes = &totalB
		if okA && avail <= total {
			usedB := int64(total-avail) * 1024
			pct := float64(total-avail) / float64(total) * 100
			res.Metrics.MemoryUsedBytes = &usedB
			res.Metrics.MemoryUtilization = &pct
		}
	}
}

func (c *Collector) collectDisk(sess SNMPClient, spec DiskSpec, res *models.PollResult) {
	switch spec.Mode {
	case DiskPercent:
		pct, okP := c.getFloat(sess, spec.PercentOID)
		if okP && pct >= 0 && pct <= 100 {
			res.Metrics.DiskUtilization = &pct
		}
		if spec.CapacityOID != "" {
			if cap64, ok := c.getUint(sess, spec.CapacityOID); ok {
				total := int64(cap64) * scaleOr1(spec.CapacityScale)
				res.Metrics.DiskTotalBytes = &total
				if res.Metrics.DiskUtilization != nil {
					used := int64(float64(total) * *res.Metrics.DiskUtilization / 100)
					res.Metrics.DiskUsedBytes = &used
				}
			}
		}

	case DiskHrStorage:
		c.collectHrStorageDisk(sess, res)
	}
}

// collectHrStorageDisk walks hrStorageDescr looking for the root filesystem
// (or the first fixed-disk-looking entry) and reads its size columns.
func (c *Collector) collectHrStorageDisk(sess SNMPClient, res *models.PollResult) {
	rows := c.walkColumn(sess, OIDHrStorageDescr, 50)

	index := ""
	for _, row := range rows {
		name, err := pdu.String(row.pdu)
		if err != nil {
			continue
		}
		if name == "/" {
			index = row.index
			break
		}
		if index == "" && (strings.HasPrefix(name, "/") || strings.Contains(strings.ToLower(name), "disk")) {
			index = row.index
		}
	}
	if index == "" {
		return
	}

	units, okU := c.getUint(sess, OIDHrStorageUnits+"."+index)
	size, okS := c.getUint(sess, OIDHrStorageSize+"."+index)
	used, okD := c.getUint(sess, OIDHrStorageUsed+"."+index)
	if !okU || !okS || size == 0 {
		return
	}

	total := int64(size * units)
	res.Metrics.DiskTotalBytes = &total
	if okD {
		usedB := int64(used * units)
		pct := float64(used) / float64(size) * 100
		res.Metrics.DiskUsedBytes = &usedB
		res.Metrics.DiskUtilization = &pct
	}
}

func (c *Collector) collectSwap(sess SNMPClient, spec SwapSpec, res *models.PollResult) {
	switch spec.Mode {
	case MemPercent:
		if v, ok := c.getFloat(sess, spec.PercentOID); ok && v >= 0 && v <= 100 {
			res.Metrics.SwapUtilization = &v
		}
		if spec.TotalOID != "" {
			if t, ok := c.getUint(sess, spec.TotalOID); ok {
				total := int64(t) * scaleOr1(spec.TotalScale)
				res.Metrics.SwapTotalBytes = &total
			}
		}

	case MemTotalKiB:
		total, okT := c.getUint(sess, spec.TotalOID)
		avail, okA := c.getUint(sess, spec.AvailOID)
		if !okT || total == 0 {
			return
		}
		totalB := int64(total) * 1024
		res.Metrics.SwapTotalBytes = &totalB
		if okA && avail <= total {
			pct := float64(total-avail) / float64(total) * 100
			res.Metrics.SwapUtilization = &pct
		}
	}
}

// collectServices reads the vendor service-status table one scalar at a time;
// missing entries are skipped.
func (c *Collector) collectServices(sess SNMPClient, services []ServiceOID, res *models.PollResult) {
	status := make(map[string]bool, len(services))
	for _, svc := range services {
		pkt, err := sess.Get([]string{svc.OID})
		if err != nil || len(pkt.Variables) == 0 {
			continue
		}
		vb := pkt.Variables[0]
		if pdu.IsError(vb.Type) {
			continue
		}
		status[svc.Name] = ServiceValueUp(vb.Value)
	}
	if len(status) > 0 {
		res.Metrics.ServicesStatus = status
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Interface walk
// ─────────────────────────────────────────────────────────────────────────────

type walkRow struct {
	index string
	pdu   gosnmp.SnmpPDU
}

// walkColumn walks one table column with GETNEXT, stopping when the agent
// leaves the column subtree or maxRows is reached.
func (c *Collector) walkColumn(sess SNMPClient, root string, maxRows int) []walkRow {
	var rows []walkRow
	current := root
	for len(rows) < maxRows {
		pkt, err := sess.GetNext([]string{current})
		if err != nil || len(pkt.Variables) == 0 {
			break
		}
		vb := pkt.Variables[0]
		if vb.Type == gosnmp.EndOfMibView {
			break
		}
		name := pdu.NormalizeOID(vb.Name)
		if !pdu.IsDescendant(root, name) || name == pdu.NormalizeOID(current) {
			break
		}
		rows = append(rows, walkRow{index: pdu.IndexSuffix(root, name), pdu: vb})
		current = name
	}
	return rows
}

// collectInterfaces walks ifDescr and reads the per-row status, counter, and
// speed columns, preferring the 64-bit ifHC* octet counters.
func (c *Collector) collectInterfaces(ctx context.Context, sess SNMPClient, res *models.PollResult) {
	rows := c.walkColumn(sess, OIDIfDescr, c.cfg.WalkMaxRows)
	if len(rows) == 0 {
		return
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}

		ifIndex, err := strconv.Atoi(row.index)
		if err != nil {
			continue
		}
		name, _ := pdu.String(row.pdu)

		sample := models.InterfaceSample{
			IfIndex:     ifIndex,
			Name:        name,
			AdminStatus: models.IfUnknown,
			OperStatus:  models.IfUnknown,
		}

		idx := "." + row.index
		pkt, err := sess.Get([]string{
			OIDIfAdminStatus + idx,
			OIDIfOperStatus + idx,
			OIDIfHCInOctets + idx,
			OIDIfHCOutOctets + idx,
			OIDIfInErrors + idx,
			OIDIfOutErrors + idx,
			OIDIfInDiscards + idx,
			OIDIfOutDiscards + idx,
			OIDIfHighSpeed + idx,
		})
		if err == nil {
			c.applyInterfaceRow(sess, pkt, idx, &sample)
		}

		res.Interfaces = append(res.Interfaces, sample)
	}

	c.aggregateInterfaces(res)
}

// applyInterfaceRow maps the row GET response onto the sample, falling back
// to 32-bit counters and ifSpeed when the HC columns are absent.
func (c *Collector) applyInterfaceRow(sess SNMPClient, pkt *gosnmp.SnmpPacket, idx string, s *models.InterfaceSample) {
	hcIn, hcOut := false, false

	for _, vb := range pkt.Variables {
		if pdu.IsError(vb.Type) {
			continue
		}
		name := pdu.NormalizeOID(vb.Name)
		switch {
		case strings.HasPrefix(name, OIDIfAdminStatus):
			if v, err := pdu.Int64(vb); err == nil {
				s.AdminStatus = models.IfStatusFromInt(int(v))
			}
		case strings.HasPrefix(name, OIDIfOperStatus):
			if v, err := pdu.Int64(vb); err == nil {
				s.OperStatus = models.IfStatusFromInt(int(v))
			}
		case strings.HasPrefix(name, OIDIfHCInOctets):
			if v, err := pdu.Uint64(vb); err == nil {
				s.InOctets, hcIn = v, true
			}
		case strings.HasPrefix(name, OIDIfHCOutOctets):
			if v, err := pdu.Uint64(vb); err == nil {
				s.OutOctets, hcOut = v, true
			}
		case strings.HasPrefix(name, OIDIfInErrors):
			if v, err := pdu.Uint64(vb); err == nil {
				s.InErrors = v
			}
		case strings.HasPrefix(name, OIDIfOutErrors):
			if v, err := pdu.Uint64(vb); err == nil {
				s.OutErrors = v
			}
		case strings.HasPrefix(name, OIDIfInDiscards):
			if v, err := pdu.Uint64(vb); err == nil {
				s.InDiscards = v
			}
		case strings.HasPrefix(name, OIDIfOutDiscards):
			if v, err := pdu.Uint64(vb); err == nil {
				s.OutDiscards = v
			}
		case strings.HasPrefix(name, OIDIfHighSpeed):
			if v, err := pdu.Uint64(vb); err == nil && v > 0 {
				mbps := int64(v) // ifHighSpeed is already Mbps
				s.SpeedMbps = &mbps
			}
		}
	}

	// 32-bit fallbacks for agents without the HC columns.
	if !hcIn || !hcOut || s.SpeedMbps == nil {
		var fallback []string
		if !hcIn {
			fallback = append(fallback, OIDIfInOctets+idx)
		}
		if !hcOut {
			fallback = append(fallback, OIDIfOutOctets+idx)
		}
		if s.SpeedMbps == nil {
			fallback = append(fallback, OIDIfSpeed+idx)
		}
		pkt2, err := sess.Get(fallback)
		if err != nil {
			return
		}
		for _, vb := range pkt2.Variables {
			if pdu.IsError(vb.Type) {
				continue
			}
			name := pdu.NormalizeOID(vb.Name)
			switch {
			case strings.HasPrefix(name, OIDIfInOctets):
				if v, err := pdu.Uint64(vb); err == nil {
					s.InOctets = v
				}
			case strings.HasPrefix(name, OIDIfOutOctets):
				if v, err := pdu.Uint64(vb); err == nil {
					s.OutOctets = v
				}
			case strings.HasPrefix(name, OIDIfSpeed):
				if v, err := pdu.Uint64(vb); err == nil && v > 0 {
					mbps := int64(v / 1_000_000) // ifSpeed is bits/sec
					s.SpeedMbps = &mbps
				}
			}
		}
	}
}

// aggregateInterfaces folds the per-interface samples into the device row
// totals.
func (c *Collector) aggregateInterfaces(res *models.PollResult) {
	m := &res.Metrics
	m.InterfaceCount = len(res.Interfaces)
	for i := range res.Interfaces {
		s := &res.Interfaces[i]
		switch s.OperStatus {
		case models.IfUp:
			m.InterfacesUp++
		case models.IfDown:
			m.InterfacesDown++
		}
		m.TotalInOctets += s.InOctets
		m.TotalOutOctets += s.OutOctets
		m.TotalInErrors += s.InErrors
		m.TotalOutErrors += s.OutErrors
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scalar helpers
// ─────────────────────────────────────────────────────────────────────────────

func (c *Collector) getUint(sess SNMPClient, oid string) (uint64, bool) {
	pkt, err := sess.Get([]string{oid})
	if err != nil || len(pkt.Variables) == 0 {
		return 0, false
	}
	v, err := pdu.Uint64(pkt.Variables[0])
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Collector) getFloat(sess SNMPClient, oid string) (float64, bool) {
	pkt, err := sess.Get([]string{oid})
	if err != nil || len(pkt.Variables) == 0 {
		return 0, false
	}
	v, err := pdu.Float64(pkt.Variables[0])
	if err != nil {
		return 0, false
	}
	return v, true
}

// StripCIDR removes an optional /prefix suffix from an address stored in CIDR
// form.
func StripCIDR(ip string) string {
	if i := strings.IndexByte(ip, '/'); i >= 0 {
		return ip[:i]
	}
	return ip
}

// ─────────────────────────────────────────────────────────────────────────────
// Misc
// ─────────────────────────────────────────────────────────────────────────────

func scaleOr1(scale int64) int64 {
	if scale <= 0 {
		return 1
	}
	return scale
}
