package collector_test

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/collector"
	"github.com/gridwatch/netpulse/pkg/netpulse/crypto"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake SNMP agent
// ─────────────────────────────────────────────────────────────────────────────

// fakeAgent answers Get from a fixed OID map and GetNext by lexicographic
// walk over the numerically sorted OID space, like a real agent.
type fakeAgent struct {
	values map[string]gosnmp.SnmpPDU
	sorted []string
	closed bool
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{values: make(map[string]gosnmp.SnmpPDU)}
}

func (f *fakeAgent) set(oid string, t gosnmp.Asn1BER, v interface{}) {
	f.values[oid] = gosnmp.SnmpPDU{Name: "." + oid, Type: t, Value: v}
	f.sorted = nil
}

func (f *fakeAgent) sortedOIDs() []string {
	if f.sorted == nil {
		for oid := range f.values {
			f.sorted = append(f.sorted, oid)
		}
		sort.Slice(f.sorted, func(i, j int) bool {
			return oidLess(f.sorted[i], f.sorted[j])
		})
	}
	return f.sorted
}

func oidLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, _ := strconv.Atoi(as[i])
		bi, _ := strconv.Atoi(bs[i])
		if ai != bi {
			return ai < bi
		}
	}
	return len(as) < len(bs)
}

func (f *fakeAgent) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	pkt := &gosnmp.SnmpPacket{}
	for _, oid := range oids {
		key := strings.TrimPrefix(oid, ".")
		if vb, ok := f.values[key]; ok {
			pkt.Variables = append(pkt.Variables, vb)
		} else {
			pkt.Variables = append(pkt.Variables, gosnmp.SnmpPDU{
				Name: "." + key, Type: gosnmp.NoSuchObject,
			})
		}
	}
	return pkt, nil
}

func (f *fakeAgent) GetNext(oids []string) (*gosnmp.SnmpPacket, error) {
	pkt := &gosnmp.SnmpPacket{}
	for _, oid := range oids {
		key := strings.TrimPrefix(oid, ".")
		next := ""
		for _, candidate := range f.sortedOIDs() {
			if oidLess(key, candidate) {
				next = candidate
				break
			}
		}
		if next == "" {
			pkt.Variables = append(pkt.Variables, gosnmp.SnmpPDU{
				Name: "." + key, Type: gosnmp.EndOfMibView,
			})
			continue
		}
		pkt.Variables = append(pkt.Variables, f.values[next])
	}
	return pkt, nil
}

func (f *fakeAgent) Close() error {
	f.closed = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

const testSecret = "unit-test-secret"

func testCipher(t *testing.T) *crypto.CredentialCipher {
	t.Helper()
	c, err := crypto.New(testSecret)
	require.NoError(t, err)
	return c
}

func encrypted(t *testing.T, c *crypto.CredentialCipher, plaintext string) string {
	t.Helper()
	ct, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	return ct
}

func ciscoDevice() *models.Device {
	return &models.Device{
		ID:        "dev-1",
		Name:      "rtr1",
		IPAddress: "10.0.0.1/24",
		Vendor:    "Cisco IOS",
		SNMPPort:  161,
		PollICMP:  true,
		PollSNMP:  true,
		IsActive:  true,
	}
}

func authPrivCredential(t *testing.T, c *crypto.CredentialCipher) *models.SNMPCredential {
	return &models.SNMPCredential{
		ID:                    "cred-1",
		Username:              "monitor",
		SecurityLevel:         models.AuthPriv,
		AuthProtocol:          "sha-256",
		PrivProtocol:          "aes-256",
		AuthPasswordEncrypted: encrypted(t, c, "authpass123"),
		PrivPasswordEncrypted: encrypted(t, c, "privpass123"),
	}
}

// ciscoAgent populates the fake with the happy-path scenario values.
func ciscoAgent() *fakeAgent {
	a := newFakeAgent()
	a.set(collector.OIDSysUpTime, gosnmp.TimeTicks, uint32(360000)) // 3600 s
	a.set(collector.OIDSysName, gosnmp.OctetString, []byte("rtr1"))
	a.set(collector.OIDSysDescr, gosnmp.OctetString, []byte("Cisco IOS Software"))
	a.set(collector.OIDIfNumber, gosnmp.Integer, 1)

	a.set("1.3.6.1.4.1.9.9.109.1.1.1.1.8.1", gosnmp.Gauge32, uint32(42))     // CPU
	a.set("1.3.6.1.4.1.9.9.48.1.1.1.5.1", gosnmp.Gauge32, uint32(100000000)) // mem used
	a.set("1.3.6.1.4.1.9.9.48.1.1.1.6.1", gosnmp.Gauge32, uint32(400000000)) // mem free

	a.set(collector.OIDIfDescr+".1", gosnmp.OctetString, []byte("GigabitEthernet0/1"))
	a.set(collector.OIDIfAdminStatus+".1", gosnmp.Integer, 1)
	a.set(collector.OIDIfOperStatus+".1", gosnmp.Integer, 1)
	a.set(collector.OIDIfHCInOctets+".1", gosnmp.Counter64, uint64(1048576))
	a.set(collector.OIDIfHCOutOctets+".1", gosnmp.Counter64, uint64(2048))
	a.set(collector.OIDIfInErrors+".1", gosnmp.Counter32, uint(0))
	a.set(collector.OIDIfOutErrors+".1", gosnmp.Counter32, uint(0))
	a.set(collector.OIDIfHighSpeed+".1", gosnmp.Gauge32, uint32(1000))
	return a
}

func newTestCollector(t *testing.T, agent *fakeAgent, pingOutput string) *collector.Collector {
	c := collector.New(collector.Config{}, testCipher(t), nil)
	c.SetDialer(func(p collector.SessionParams) (collector.SNMPClient, error) {
		return agent, nil
	})
	c.SetPingRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(pingOutput), nil
	})
	return c
}

const reachablePing = `3 packets transmitted, 3 received, 0% packet loss, time 2003ms
rtt min/avg/max/mdev = 2.400/2.500/2.600/0.100 ms`

// ─────────────────────────────────────────────────────────────────────────────
// Scenarios
// ─────────────────────────────────────────────────────────────────────────────

func TestPollCiscoHappyPath(t *testing.T) {
	cipher := testCipher(t)
	agent := ciscoAgent()

	c := collector.New(collector.Config{}, cipher, nil)
	c.SetDialer(func(p collector.SessionParams) (collector.SNMPClient, error) {
		assert.Equal(t, "10.0.0.1", p.Target, "CIDR suffix must be stripped")
		assert.Equal(t, "authpass123", p.AuthPassword)
		assert.Equal(t, "privpass123", p.PrivPassword)
		return agent, nil
	})
	c.SetPingRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(reachablePing), nil
	})

	res := c.Poll(context.Background(), ciscoDevice(), authPrivCredential(t, cipher))
	m := &res.Metrics

	// ICMP.
	require.NotNil(t, m.ICMPReachable)
	assert.True(t, *m.ICMPReachable)
	require.NotNil(t, m.ICMPLatencyMs)
	assert.InDelta(t, 2.5, *m.ICMPLatencyMs, 0.001)

	// SNMP system.
	require.NotNil(t, m.UptimeSeconds)
	assert.Equal(t, int64(3600), *m.UptimeSeconds)
	require.NotNil(t, m.CPUUtilization)
	assert.Equal(t, 42.0, *m.CPUUtilization)
	require.NotNil(t, m.MemoryUtilization)
	assert.Equal(t, 20.0, *m.MemoryUtilization)
	require.NotNil(t, m.MemoryTotalBytes)
	assert.Equal(t, int64(500000000), *m.MemoryTotalBytes)
	require.NotNil(t, m.MemoryUsedBytes)
	assert.Equal(t, int64(100000000), *m.MemoryUsedBytes)

	// Interfaces.
	assert.Equal(t, 1, m.InterfaceCount)
	assert.Equal(t, 1, m.InterfacesUp)
	assert.Equal(t, 0, m.InterfacesDown)
	assert.Equal(t, uint64(1048576), m.TotalInOctets)

	require.Len(t, res.Interfaces, 1)
	iface := res.Interfaces[0]
	assert.Equal(t, 1, iface.IfIndex)
	assert.Equal(t, "GigabitEthernet0/1", iface.Name)
	assert.Equal(t, models.IfUp, iface.OperStatus)
	require.NotNil(t, iface.SpeedMbps)
	assert.Equal(t, int64(1000), *iface.SpeedMbps)

	// Availability and statuses.
	assert.True(t, m.IsAvailable)
	assert.Equal(t, models.StatusUp, res.ICMPStatus)
	assert.Equal(t, models.StatusUp, res.SNMPStatus)
	assert.Equal(t, models.StatusUp, res.OverallStatus())
	assert.Equal(t, "rtr1", res.SysName)
}

func TestPollCredentialDecryptFailure(t *testing.T) {
	cipher := testCipher(t)

	cred := authPrivCredential(t, cipher)
	cred.AuthPasswordEncrypted = "00ff00ff00ff00ff00ff00ff:00ff00ff00ff00ff00ff00ff00ff00ff:deadbeef"

	dialed := false
	c := collector.New(collector.Config{}, cipher, nil)
	c.SetDialer(func(p collector.SessionParams) (collector.SNMPClient, error) {
		dialed = true
		return newFakeAgent(), nil
	})
	c.SetPingRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`3 packets transmitted, 3 received, 0% packet loss
rtt min/avg/max/mdev = 0.900/1.000/1.100/0.050 ms`), nil
	})

	res := c.Poll(context.Background(), ciscoDevice(), cred)
	m := &res.Metrics

	assert.False(t, dialed, "SNMP must be skipped entirely on decrypt failure")

	// ICMP side still recorded.
	require.NotNil(t, m.ICMPReachable)
	assert.True(t, *m.ICMPReachable)
	require.NotNil(t, m.ICMPLatencyMs)
	assert.InDelta(t, 1.0, *m.ICMPLatencyMs, 0.001)

	// All SNMP fields blank.
	assert.Nil(t, m.UptimeSeconds)
	assert.Nil(t, m.CPUUtilization)
	assert.Nil(t, m.MemoryUtilization)

	assert.True(t, m.IsAvailable, "ICMP reachability alone makes the device available")
	assert.Equal(t, models.StatusUp, res.ICMPStatus)
	assert.Equal(t, models.StatusUnknown, res.SNMPStatus)
}

func TestPollUnreachableDevice(t *testing.T) {
	cipher := testCipher(t)
	agent := newFakeAgent() // empty: every Get answers NoSuchObject

	c := newTestCollector(t, agent, "")
	c.SetPingRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("100% packet loss"), nil
	})

	res := c.Poll(context.Background(), ciscoDevice(), authPrivCredential(t, cipher))
	m := &res.Metrics

	require.NotNil(t, m.ICMPReachable)
	assert.False(t, *m.ICMPReachable)
	require.NotNil(t, m.ICMPPacketLossPercent)
	assert.Equal(t, 100.0, *m.ICMPPacketLossPercent)
	assert.Nil(t, m.ICMPLatencyMs)

	assert.False(t, m.IsAvailable)
	assert.Equal(t, models.StatusDown, res.ICMPStatus)
	assert.Equal(t, models.StatusDown, res.SNMPStatus)
	assert.Equal(t, models.StatusDown, res.OverallStatus())
}

func TestCPUOutOfRangeDiscarded(t *testing.T) {
	cipher := testCipher(t)
	agent := ciscoAgent()
	agent.set("1.3.6.1.4.1.9.9.109.1.1.1.1.8.1", gosnmp.Gauge32, uint32(4242)) // bogus
	agent.set("1.3.6.1.4.1.9.9.109.1.1.1.1.5.1", gosnmp.Gauge32, uint32(55))   // next candidate

	c := newTestCollector(t, agent, reachablePing)
	res := c.Poll(context.Background(), ciscoDevice(), authPrivCredential(t, cipher))

	require.NotNil(t, res.Metrics.CPUUtilization)
	assert.Equal(t, 55.0, *res.Metrics.CPUUtilization,
		"out-of-range candidate must fall through to the next OID")
}

func TestWalkCapsAtMaxRows(t *testing.T) {
	cipher := testCipher(t)
	agent := newFakeAgent()
	agent.set(collector.OIDSysUpTime, gosnmp.TimeTicks, uint32(100))
	for i := 1; i <= 50; i++ {
		agent.set(collector.OIDIfDescr+"."+strconv.Itoa(i), gosnmp.OctetString, []byte("eth"+strconv.Itoa(i)))
		agent.set(collector.OIDIfOperStatus+"."+strconv.Itoa(i), gosnmp.Integer, 1)
	}

	c := collector.New(collector.Config{WalkMaxRows: 10}, cipher, nil)
	c.SetDialer(func(collector.SessionParams) (collector.SNMPClient, error) { return agent, nil })

	device := ciscoDevice()
	device.PollICMP = false

	res := c.Poll(context.Background(), device, authPrivCredential(t, cipher))
	assert.Len(t, res.Interfaces, 10)
	assert.Equal(t, 10, res.Metrics.InterfaceCount)
}

func TestWalkTerminatesOutsideRoot(t *testing.T) {
	cipher := testCipher(t)
	agent := newFakeAgent()
	agent.set(collector.OIDSysUpTime, gosnmp.TimeTicks, uint32(100))
	agent.set(collector.OIDIfDescr+".1", gosnmp.OctetString, []byte("eth0"))
	agent.set(collector.OIDIfDescr+".2", gosnmp.OctetString, []byte("eth1"))
	// The next column in the table; a correct walk must not consume it.
	agent.set(collector.OIDIfSpeed+".1", gosnmp.Gauge32, uint32(1000000000))

	c := newTestCollector(t, agent, reachablePing)
	device := ciscoDevice()
	device.PollICMP = false

	res := c.Poll(context.Background(), device, authPrivCredential(t, cipher))
	require.Len(t, res.Interfaces, 2)
	assert.Equal(t, "eth0", res.Interfaces[0].Name)
	assert.Equal(t, "eth1", res.Interfaces[1].Name)
}

func TestSophosServiceStatus(t *testing.T) {
	cipher := testCipher(t)
	agent := newFakeAgent()
	agent.set(collector.OIDSysUpTime, gosnmp.TimeTicks, uint32(8640000))
	agent.set("1.3.6.1.4.1.2604.5.1.3.3.0", gosnmp.Integer, 1)                      // smtp up
	agent.set("1.3.6.1.4.1.2604.5.1.3.5.0", gosnmp.OctetString, []byte("running"))  // http up
	agent.set("1.3.6.1.4.1.2604.5.1.3.6.0", gosnmp.OctetString, []byte("disabled")) // av down

	c := newTestCollector(t, agent, reachablePing)

	device := ciscoDevice()
	device.Vendor = "Sophos SFOS"
	device.PollICMP = false

	res := c.Poll(context.Background(), device, authPrivCredential(t, cipher))
	require.NotNil(t, res.Metrics.ServicesStatus)
	assert.True(t, res.Metrics.ServicesStatus["smtp"])
	assert.True(t, res.Metrics.ServicesStatus["http"])
	assert.False(t, res.Metrics.ServicesStatus["av"])
}

func TestHCCounterFallbackTo32Bit(t *testing.T) {
	cipher := testCipher(t)
	agent := newFakeAgent()
	agent.set(collector.OIDSysUpTime, gosnmp.TimeTicks, uint32(100))
	agent.set(collector.OIDIfDescr+".1", gosnmp.OctetString, []byte("fa0/0"))
	agent.set(collector.OIDIfOperStatus+".1", gosnmp.Integer, 2)
	// No ifHC* columns; only 32-bit counters and ifSpeed.
	agent.set(collector.OIDIfInOctets+".1", gosnmp.Counter32, uint(777))
	agent.set(collector.OIDIfOutOctets+".1", gosnmp.Counter32, uint(888))
	agent.set(collector.OIDIfSpeed+".1", gosnmp.Gauge32, uint32(100000000))

	c := newTestCollector(t, agent, reachablePing)
	device := ciscoDevice()
	device.PollICMP = false

	res := c.Poll(context.Background(), device, authPrivCredential(t, cipher))
	require.Len(t, res.Interfaces, 1)
	iface := res.Interfaces[0]
	assert.Equal(t, uint64(777), iface.InOctets)
	assert.Equal(t, uint64(888), iface.OutOctets)
	assert.Equal(t, models.IfDown, iface.OperStatus)
	require.NotNil(t, iface.SpeedMbps)
	assert.Equal(t, int64(100), *iface.SpeedMbps)
	assert.Equal(t, 1, res.Metrics.InterfacesDown)
}

func TestAvailabilityRule(t *testing.T) {
	reachable := true
	unreachable := false
	uptime := int64(10)
	zero := int64(0)

	cases := []struct {
		name string
		m    models.DeviceMetrics
		want bool
	}{
		{"icmp up", models.DeviceMetrics{ICMPReachable: &reachable}, true},
		{"snmp uptime only", models.DeviceMetrics{ICMPReachable: &unreachable, UptimeSeconds: &uptime}, true},
		{"neither", models.DeviceMetrics{ICMPReachable: &unreachable}, false},
		{"zero uptime", models.DeviceMetrics{UptimeSeconds: &zero}, false},
		{"nothing set", models.DeviceMetrics{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.m.Available())
		})
	}
}
