// Vendor OID registry.
//
// Each vendor family resolves to a CPU OID candidate list and memory/disk
// specs. The collector tries CPU candidates in order until one returns a
// value inside [0,100]; memory and disk specs declare how the raw values
// scale (percent, used+free pair, or a total that arrives in KiB/MiB).
//
// Standard MIBs referenced: SNMPv2-MIB (system group), IF-MIB (RFC 2863,
// including the 64-bit ifHC* counters), HOST-RESOURCES-MIB (RFC 2790),
// UCD-SNMP-MIB. Everything else is enterprise-specific.

package collector

import (
	"strings"

	"github.com/gridwatch/netpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Well-known OIDs
// ─────────────────────────────────────────────────────────────────────────────

const (
	OIDSysDescr    = "1.3.6.1.2.1.1.1.0"
	OIDSysUpTime   = "1.3.6.1.2.1.1.3.0"
	OIDSysContact  = "1.3.6.1.2.1.1.4.0"
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
	OIDSysLocation = "1.3.6.1.2.1.1.6.0"
	OIDIfNumber    = "1.3.6.1.2.1.2.1.0"

	// IF-MIB column roots; walked / indexed by ifIndex.
	OIDIfDescr       = "1.3.6.1.2.1.2.2.1.2"
	OIDIfSpeed       = "1.3.6.1.2.1.2.2.1.5"
	OIDIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	OIDIfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	OIDIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	OIDIfInDiscards  = "1.3.6.1.2.1.2.2.1.13"
	OIDIfInErrors    = "1.3.6.1.2.1.2.2.1.14"
	OIDIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	OIDIfOutDiscards = "1.3.6.1.2.1.2.2.1.19"
	OIDIfOutErrors   = "1.3.6.1.2.1.2.2.1.20"

	OIDIfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"
	OIDIfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"
	OIDIfHighSpeed   = "1.3.6.1.2.1.31.1.1.1.15"

	// HOST-RESOURCES-MIB.
	OIDHrProcessorLoad1 = "1.3.6.1.2.1.25.3.3.1.2.1"
	OIDHrProcessorLoad2 = "1.3.6.1.2.1.25.3.3.1.2.2"
	OIDHrStorageDescr   = "1.3.6.1.2.1.25.2.3.1.3"
	OIDHrStorageUnits   = "1.3.6.1.2.1.25.2.3.1.4"
	OIDHrStorageSize    = "1.3.6.1.2.1.25.2.3.1.5"
	OIDHrStorageUsed    = "1.3.6.1.2.1.25.2.3.1.6"

	// UCD-SNMP-MIB memory, KiB-valued scalars.
	OIDUcdMemTotalReal = "1.3.6.1.4.1.2021.4.5.0"
	OIDUcdMemAvailReal = "1.3.6.1.4.1.2021.4.6.0"
	OIDUcdSwapTotal    = "1.3.6.1.4.1.2021.4.3.0"
	OIDUcdSwapAvail    = "1.3.6.1.4.1.2021.4.4.0"
)

// ─────────────────────────────────────────────────────────────────────────────
// Metric specs
// ─────────────────────────────────────────────────────────────────────────────

// MemoryMode selects how a vendor reports memory.
type MemoryMode int

const (
	// MemNone: vendor exposes no usable memory OIDs.
	MemNone MemoryMode = iota
	// MemPercent: a single used-percent OID; TotalOID (optional) gives
	// capacity scaled by TotalScale bytes per unit.
	MemPercent
	// MemUsedFree: used+free byte pair; percent and totals are derived.
	MemUsedFree
	// MemTotalKiB: total+available pair in KiB (UCD style).
	MemTotalKiB
)

// MemorySpec describes a vendor's memory OIDs.
type MemorySpec struct {
	Mode MemoryMode

	PercentOID string
	UsedOID    string
	FreeOID    string
	TotalOID   string
	AvailOID   string

	// TotalScale is bytes per unit of TotalOID (e.g. 1<<20 when the total
	// arrives in MiB). Zero means 1.
	TotalScale int64
}

// DiskMode selects how a vendor reports disk usage.
type DiskMode int

const (
	DiskNone DiskMode = iota
	// DiskPercent: used-percent plus capacity OID scaled by CapacityScale.
	DiskPercent
	// DiskHrStorage: walk hrStorageTable and read the fixed-disk entry.
	DiskHrStorage
)

// DiskSpec describes a vendor's disk OIDs.
type DiskSpec struct {
	Mode DiskMode

	PercentOID    string
	CapacityOID   string
	CapacityScale int64 // bytes per unit of CapacityOID; zero means 1
}

// SwapSpec mirrors MemorySpec for swap, when the vendor exposes it.
type SwapSpec struct {
	Mode MemoryMode

	PercentOID string
	TotalOID   string
	AvailOID   string
	TotalScale int64
}

// ServiceOID names one entry of a vendor's service-status table.
type ServiceOID struct {
	Name string
	OID  string
}

// VendorProfile is the complete OID capability set for one vendor family.
type VendorProfile struct {
	Kind models.VendorKind

	// CPUOIDs are tried in order until one returns a value in [0,100].
	CPUOIDs []string

	Memory MemorySpec
	Disk   DiskSpec
	Swap   SwapSpec

	// Services is the per-service status table (Sophos only). Integer 1 or
	// the strings running/active/enabled/up count as up.
	Services []ServiceOID
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

var genericProfile = VendorProfile{
	Kind:    models.VendorGeneric,
	CPUOIDs: []string{OIDHrProcessorLoad1},
	Memory: MemorySpec{
		Mode:     MemTotalKiB,
		TotalOID: OIDUcdMemTotalReal,
		AvailOID: OIDUcdMemAvailReal,
	},
	Disk: DiskSpec{Mode: DiskHrStorage},
	Swap: SwapSpec{
		Mode:       MemTotalKiB,
		TotalOID:   OIDUcdSwapTotal,
		AvailOID:   OIDUcdSwapAvail,
		TotalScale: 1024,
	},
}

var vendorProfiles = map[models.VendorKind]VendorProfile{
	models.VendorCisco: {
		Kind: models.VendorCisco,
		CPUOIDs: []string{
			"1.3.6.1.4.1.9.9.109.1.1.1.1.8.1", // cpmCPUTotal5minRev
			"1.3.6.1.4.1.9.9.109.1.1.1.1.5.1", // cpmCPUTotal5min (deprecated)
			"1.3.6.1.4.1.9.2.1.58.0",          // avgBusy5
		},
		Memory: MemorySpec{
			Mode:    MemUsedFree,
			UsedOID: "1.3.6.1.4.1.9.9.48.1.1.1.5.1", // ciscoMemoryPoolUsed (processor)
			FreeOID: "1.3.6.1.4.1.9.9.48.1.1.1.6.1", // ciscoMemoryPoolFree
		},
	},

	models.VendorCiscoNXOS: {
		Kind: models.VendorCiscoNXOS,
		CPUOIDs: []string{
			"1.3.6.1.4.1.9.9.305.1.1.1.0",     // cseSysCPUUtilization
			"1.3.6.1.4.1.9.9.109.1.1.1.1.8.1", // cpmCPUTotal5minRev fallback
		},
		Memory: MemorySpec{
			Mode:       MemPercent,
			PercentOID: "1.3.6.1.4.1.9.9.305.1.1.2.0", // cseSysMemoryUtilization
		},
	},

	models.VendorJuniper: {
		Kind: models.VendorJuniper,
		CPUOIDs: []string{
			"1.3.6.1.4.1.2636.3.1.13.1.8.9.1.0.0", // jnxOperatingCPU (RE0)
			"1.3.6.1.4.1.2636.3.1.13.1.8.9.2.0.0", // jnxOperatingCPU (RE1)
		},
		Memory: MemorySpec{
			Mode:       MemPercent,
			PercentOID: "1.3.6.1.4.1.2636.3.1.13.1.11.9.1.0.0", // jnxOperatingBuffer (RE0)
		},
	},

	models.VendorPaloAlto: {
		Kind: models.VendorPaloAlto,
		// PAN-OS answers HOST-RESOURCES; index 1 is the management plane,
		// index 2 the data plane.
		CPUOIDs: []string{OIDHrProcessorLoad1, OIDHrProcessorLoad2},
		Memory: MemorySpec{
			Mode:     MemTotalKiB,
			TotalOID: OIDUcdMemTotalReal,
			AvailOID: OIDUcdMemAvailReal,
		},
	},

	models.VendorFortinet: {
		Kind:    models.VendorFortinet,
		CPUOIDs: []string{"1.3.6.1.4.1.12356.101.4.1.3.0"}, // fgSysCpuUsage
		Memory: MemorySpec{
			Mode:       MemPercent,
			PercentOID: "1.3.6.1.4.1.12356.101.4.1.4.0", // fgSysMemUsage
			TotalOID:   "1.3.6.1.4.1.12356.101.4.1.5.0", // fgSysMemCapacity (KiB)
			TotalScale: 1024,
		},
		Disk: DiskSpec{
			Mode:          DiskPercent,
			PercentOID:    "1.3.6.1.4.1.12356.101.4.1.6.0", // fgSysDiskUsage (MiB used)
			CapacityOID:   "1.3.6.1.4.1.12356.101.4.1.7.0", // fgSysDiskCapacity (MiB)
			CapacityScale: 1024 * 1024,
		},
	},

	models.VendorArista: {
		Kind:    models.VendorArista,
		CPUOIDs: []string{OIDHrProcessorLoad1},
		Memory: MemorySpec{
			Mode:     MemTotalKiB,
			TotalOID: OIDUcdMemTotalReal,
			AvailOID: OIDUcdMemAvailReal,
		},
	},

	models.VendorSophos: {
		Kind:    models.VendorSophos,
		CPUOIDs: []string{"1.3.6.1.4.1.2604.5.1.2.3.2.0"}, // sfosCpuPercentUsage
		Memory: MemorySpec{
			Mode:       MemPercent,
			PercentOID: "1.3.6.1.4.1.2604.5.1.2.5.2.0", // sfosMemoryPercentUsage
			TotalOID:   "1.3.6.1.4.1.2604.5.1.2.5.1.0", // sfosMemoryCapacity (MiB)
			TotalScale: 1024 * 1024,
		},
		Disk: DiskSpec{
			Mode:          DiskPercent,
			PercentOID:    "1.3.6.1.4.1.2604.5.1.2.4.2.0", // sfosDiskPercentUsage
			CapacityOID:   "1.3.6.1.4.1.2604.5.1.2.4.1.0", // sfosDiskCapacity (MiB)
			CapacityScale: 1024 * 1024,
		},
		Swap: SwapSpec{
			Mode:       MemPercent,
			PercentOID: "1.3.6.1.4.1.2604.5.1.2.5.4.0", // sfosSwapPercentUsage
			TotalOID:   "1.3.6.1.4.1.2604.5.1.2.5.3.0", // sfosSwapCapacity (MiB)
			TotalScale: 1024 * 1024,
		},
		Services: sophosServices,
	},

	models.VendorGeneric: genericProfile,
}

// sophosServices is the SFOS per-service status table. Value 1 or strings
// running/active/enabled/up mean the service is up.
var sophosServices = []ServiceOID{
	{"pop3", "1.3.6.1.4.1.2604.5.1.3.1.0"},
	{"imap4", "1.3.6.1.4.1.2604.5.1.3.2.0"},
	{"smtp", "1.3.6.1.4.1.2604.5.1.3.3.0"},
	{"ftp", "1.3.6.1.4.1.2604.5.1.3.4.0"},
	{"http", "1.3.6.1.4.1.2604.5.1.3.5.0"},
	{"av", "1.3.6.1.4.1.2604.5.1.3.6.0"},
	{"as", "1.3.6.1.4.1.2604.5.1.3.7.0"},
	{"dns", "1.3.6.1.4.1.2604.5.1.3.8.0"},
	{"ha", "1.3.6.1.4.1.2604.5.1.3.9.0"},
	{"ips", "1.3.6.1.4.1.2604.5.1.3.10.0"},
	{"apache", "1.3.6.1.4.1.2604.5.1.3.11.0"},
	{"ntp", "1.3.6.1.4.1.2604.5.1.3.12.0"},
	{"tomcat", "1.3.6.1.4.1.2604.5.1.3.13.0"},
	{"ssl-vpn", "1.3.6.1.4.1.2604.5.1.3.14.0"},
	{"ipsec-vpn", "1.3.6.1.4.1.2604.5.1.3.15.0"},
	{"database", "1.3.6.1.4.1.2604.5.1.3.16.0"},
	{"network", "1.3.6.1.4.1.2604.5.1.3.17.0"},
	{"garner", "1.3.6.1.4.1.2604.5.1.3.18.0"},
	{"sshd", "1.3.6.1.4.1.2604.5.1.3.19.0"},
	{"dgd", "1.3.6.1.4.1.2604.5.1.3.20.0"},
}

// ProfileFor returns the OID profile for a vendor family, falling back to the
// generic HOST-RESOURCES profile for unknown vendors.
func ProfileFor(kind models.VendorKind) VendorProfile {
	if p, ok := vendorProfiles[kind]; ok {
		return p
	}
	return genericProfile
}

// ServiceValueUp interprets a service-status varbind value: integer 1, or the
// strings running/active/enabled/up (any case), mean up.
func ServiceValueUp(v any) bool {
	switch x := v.(type) {
	case int:
		return x == 1
	case int32:
		return x == 1
	case int64:
		return x == 1
	case uint:
		return x == 1
	case uint32:
		return x == 1
	case uint64:
		return x == 1
	case string:
		return serviceStringUp(x)
	case []byte:
		return serviceStringUp(string(x))
	default:
		return false
	}
}

func serviceStringUp(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "running", "active", "enabled", "up":
		return true
	default:
		return false
	}
}
