package models

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// STIG library
// ─────────────────────────────────────────────────────────────────────────────

// Platform is the closed set of platforms a benchmark can apply to.
type Platform string

const (
	PlatformLinux      Platform = "linux"
	PlatformRedHat     Platform = "redhat"
	PlatformMacOS      Platform = "macos"
	PlatformWindows    Platform = "windows"
	PlatformCiscoIOS   Platform = "cisco_ios"
	PlatformCiscoNXOS  Platform = "cisco_nxos"
	PlatformAristaEOS  Platform = "arista_eos"
	PlatformArubaCX    Platform = "hpe_aruba_cx"
	PlatformProCurve   Platform = "hp_procurve"
	PlatformMellanox   Platform = "mellanox"
	PlatformJuniperSRX Platform = "juniper_srx"
	PlatformJunOS      Platform = "juniper_junos"
	PlatformPFSense    Platform = "pfsense"
	PlatformPaloAlto   Platform = "paloalto"
	PlatformFortinet   Platform = "fortinet"
	PlatformF5BigIP    Platform = "f5_bigip"
	PlatformESXi       Platform = "vmware_esxi"
	PlatformVCenter    Platform = "vmware_vcenter"
)

// STIGType distinguishes platform-specific guides from generic requirement
// guides.
type STIGType string

const (
	TypeSTIG STIGType = "stig"
	TypeSRG  STIGType = "srg"
)

// STIGEntry is the indexed metadata of one benchmark in the library. One
// entry per ZIP archive; produced by the library indexer and cached in
// stig_library_index.json.
type STIGEntry struct {
	BenchmarkID string `json:"benchmark_id"`
	Title       string `json:"title"`
	Version     string `json:"version"`
	Release     int    `json:"release"`
	ReleaseDate string `json:"release_date,omitempty"` // YYYY-MM-DD

	ZipFilename string `json:"zip_filename"`
	XCCDFPath   string `json:"xccdf_path"`

	Type        STIGType `json:"stig_type"`
	Status      string   `json:"status,omitempty"`
	Description string   `json:"description,omitempty"`

	RulesCount  int `json:"rules_count"`
	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`

	Platforms []Platform `json:"platforms"`
	Profiles  []string   `json:"profiles,omitempty"`

	// CCIs carries set semantics: sorted, deduplicated, so two index passes
	// over the same library compare equal.
	CCIs []string `json:"ccis,omitempty"`
}

// IsGeneric reports whether the entry is an SRG applying broadly rather than
// to one platform.
func (e *STIGEntry) IsGeneric() bool { return e.Type == TypeSRG }

// STIGSeverity is the DISA category severity of a rule.
type STIGSeverity string

const (
	SeverityHigh   STIGSeverity = "high"
	SeverityMedium STIGSeverity = "medium"
	SeverityLow    STIGSeverity = "low"
)

// STIGRule is one rule extracted from the XCCDF body of a benchmark.
type STIGRule struct {
	VulnID    string       `json:"vuln_id"` // V-######
	RuleID    string       `json:"rule_id"` // SV-…_rule
	Title     string       `json:"title"`
	Severity  STIGSeverity `json:"severity"`
	CheckText string       `json:"check_text"`
	FixText   string       `json:"fix_text"`
	CCIs      []string     `json:"ccis,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit results
// ─────────────────────────────────────────────────────────────────────────────

// CheckStatus is the outcome of evaluating one rule against a configuration.
type CheckStatus string

const (
	CheckPass          CheckStatus = "pass"
	CheckFail          CheckStatus = "fail"
	CheckNotApplicable CheckStatus = "not_applicable"
	CheckNotReviewed   CheckStatus = "not_reviewed"
	CheckError         CheckStatus = "error"
)

// AuditResult is one stig.audit_results row: the evaluation of one rule
// within one audit job.
type AuditResult struct {
	JobID          string       `json:"job_id"`
	RuleID         string       `json:"rule_id"` // the vuln_id, V-######
	Title          string       `json:"title"`
	Severity       STIGSeverity `json:"severity"`
	Status         CheckStatus  `json:"status"`
	FindingDetails string       `json:"finding_details"`
}

// AuditJobStatus tracks the lifecycle of an audit job.
type AuditJobStatus string

const (
	JobPending   AuditJobStatus = "pending"
	JobRunning   AuditJobStatus = "running"
	JobCompleted AuditJobStatus = "completed"
	JobFailed    AuditJobStatus = "failed"
)

// AuditJob is one stig.audit_jobs row: a request to evaluate one benchmark
// against one target configuration.
type AuditJob struct {
	ID          string         `json:"id"`
	TargetID    string         `json:"target_id"`
	BenchmarkID string         `json:"benchmark_id"`
	Status      AuditJobStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// AuditTarget is one stig.targets row: a device whose configuration is
// evaluated offline.
type AuditTarget struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	IPAddress string   `json:"ip_address,omitempty"`
	Platform  Platform `json:"platform"`
	// Config is the raw configuration blob supplied for offline analysis.
	Config string `json:"-"`
}
