package junos

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gridwatch/netpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Categories
// ─────────────────────────────────────────────────────────────────────────────

// Category is the coarse STIG family a rule belongs to, derived from title
// and check-text keywords.
type Category string

const (
	CategoryALG  Category = "alg"  // firewall / security policies
	CategoryNDM  Category = "ndm"  // network device management
	CategoryVPN  Category = "vpn"  // IKE / IPsec
	CategoryIDPS Category = "idps" // intrusion detection / prevention
)

// DetermineCategory routes a rule to its category by keyword.
func DetermineCategory(title, checkText string) Category {
	t := strings.ToLower(title)
	c := strings.ToLower(checkText)

	anyIn := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(t, kw) || strings.Contains(c, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case anyIn("vpn", "ike", "ipsec", "tunnel", "certificate"):
		return CategoryVPN
	case anyIn("idp", "ids", "intrusion", "attack signature"):
		return CategoryIDPS
	case anyIn("snmp", "ssh", "ntp", "syslog", "logging", "authentication",
		"password", "account", "session", "banner", "management"):
		return CategoryNDM
	default:
		return CategoryALG
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Evaluator
// ─────────────────────────────────────────────────────────────────────────────

// Handler is one named check with an explicit match predicate. Handlers are
// tried in slice order; the first match decides the rule.
type Handler struct {
	Name  string
	Match func(title string, category Category) bool
	Check func(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string)
}

// Evaluator evaluates STIG rules against one parsed configuration.
//
// Contract: a PASS finding always names at least one affirmative indicator,
// and a FAIL finding always names the missing indicator.
type Evaluator struct {
	cfg      *SecurityConfig
	handlers []Handler
}

// NewEvaluator builds an Evaluator over cfg with the standard handler chain.
func NewEvaluator(cfg *SecurityConfig) *Evaluator {
	e := &Evaluator{cfg: cfg}
	e.handlers = standardHandlers()
	return e
}

// Evaluate runs the first matching handler for rule.
func (e *Evaluator) Evaluate(rule *models.STIGRule) (models.CheckStatus, string) {
	title := strings.ToLower(rule.Title)
	category := DetermineCategory(rule.Title, rule.CheckText)

	for _, h := range e.handlers {
		if h.Match(title, category) {
			return h.Check(e, rule)
		}
	}
	// The chain always terminates at the pattern handler.
	return checkByPattern(e, rule)
}

// EvaluateAll evaluates every rule and assembles the audit results for one
// job.
func (e *Evaluator) EvaluateAll(jobID string, rules []models.STIGRule) []models.AuditResult {
	results := make([]models.AuditResult, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		status, finding := e.Evaluate(rule)
		results = append(results, models.AuditResult{
			JobID:          jobID,
			RuleID:         rule.VulnID,
			Title:          rule.Title,
			Severity:       rule.Severity,
			Status:         status,
			FindingDetails: finding,
		})
	}
	return results
}

func titleHas(title string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// standardHandlers returns the ordered handler chain. Keyword routing is
// deliberate — DISA titles are stable — but the ordering is explicit here
// rather than buried in a switch.
func standardHandlers() []Handler {
	return []Handler{
		{"ssh", func(t string, _ Category) bool { return titleHas(t, "ssh") }, checkSSH},
		{"snmp", func(t string, _ Category) bool { return titleHas(t, "snmp") }, checkSNMP},
		{"ntp", func(t string, _ Category) bool { return titleHas(t, "ntp", "time source", "time server") }, checkNTP},
		// Banner outranks logging: DISA banner titles say "logon", which the
		// logging keyword "log" would otherwise swallow.
		{"banner", func(t string, _ Category) bool { return titleHas(t, "banner") }, checkBanner},
		{"logging", func(t string, _ Category) bool { return titleHas(t, "log", "syslog", "audit") }, checkLogging},
		{"authentication", func(t string, _ Category) bool { return titleHas(t, "authentication", "tacacs", "radius") }, checkAuthentication},
		{"screen", func(t string, _ Category) bool {
			return titleHas(t, "screen") || (strings.Contains(t, "protect") && strings.Contains(t, "attack"))
		}, checkSecurityScreen},
		{"policy", func(t string, _ Category) bool { return titleHas(t, "policy", "zone") }, checkSecurityPolicy},
		{"timeout", func(t string, _ Category) bool { return titleHas(t, "timeout", "idle", "session") }, checkSessionTimeout},
		{"vpn", func(_ string, c Category) bool { return c == CategoryVPN }, checkVPN},
		{"idp", func(_ string, c Category) bool { return c == CategoryIDPS }, checkIDP},
		{"password", func(t string, _ Category) bool { return titleHas(t, "password", "lockout", "brute") }, checkPasswordPolicy},
		{"pattern", func(string, Category) bool { return true }, checkByPattern},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

var protoV2Re = regexp.MustCompile(`protocol-version\s+v2`)

func checkSSH(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	title := strings.ToLower(rule.Title)
	var findings []string
	failed := false

	ssh := cfg.SSH
	if !ssh.Present {
		if strings.Contains(cfg.RawLower, "services") && strings.Contains(cfg.RawLower, "ssh") {
			ssh.Present = true
		} else {
			return models.CheckFail, "SSH service not configured"
		}
	}

	if strings.Contains(title, "v2") || strings.Contains(title, "version 2") || strings.Contains(title, "sshv2") {
		proto := strings.ToLower(ssh.ProtocolVersion)
		switch {
		case strings.Contains(proto, "2"):
			findings = append(findings, "SSH Protocol Version: v2 ✓")
		case protoV2Re.MatchString(cfg.RawLower):
			findings = append(findings, "protocol-version v2 found in config ✓")
		case !strings.Contains(cfg.RawLower, "protocol-version"):
			findings = append(findings, "Note: JunOS defaults to SSHv2")
		default:
			findings = append(findings, fmt.Sprintf("SSH Protocol Version: %s", ssh.ProtocolVersion))
		}
	}

	if strings.Contains(title, "root") {
		switch {
		case ssh.RootLogin == "deny":
			findings = append(findings, "SSH root-login: deny ✓")
		case strings.Contains(cfg.RawLower, "root-login deny"):
			findings = append(findings, "SSH root-login deny found in config ✓")
		default:
			findings = append(findings, "SSH root-login is not set to deny")
			failed = true
		}
	}

	if strings.Contains(title, "fips") || strings.Contains(title, "cipher") {
		if containsFold(ssh.Ciphers, "aes256") || strings.Contains(cfg.RawLower, "aes256") {
			findings = append(findings, "SSH ciphers include AES256 ✓")
		}
		if containsFold(ssh.MACs, "sha2") || strings.Contains(cfg.RawLower, "sha2") {
			findings = append(findings, "SSH MACs include SHA2 ✓")
		}
	}

	if failed {
		return models.CheckFail, strings.Join(findings, "\n")
	}
	if len(findings) == 0 {
		findings = append(findings, "SSH service configured ✓")
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

func checkSNMP(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	title := strings.ToLower(rule.Title)
	var findings []string
	failed := false
	v3Rule := strings.Contains(title, "v3") || strings.Contains(title, "snmpv3")

	if v3Rule {
		switch {
		case cfg.SNMPv3.USMConfigured:
			findings = append(findings, "SNMPv3 USM is configured ✓")
			if cfg.SNMPv3.AuthSHA {
				findings = append(findings, "SNMPv3 uses SHA authentication ✓")
			} else if cfg.SNMPv3.AuthMD5 {
				findings = append(findings, "SNMPv3 uses MD5 (should use SHA)")
				failed = true
			}
			if cfg.SNMPv3.PrivAES {
				findings = append(findings, "SNMPv3 uses AES privacy ✓")
			} else if cfg.SNMPv3.PrivDES {
				findings = append(findings, "SNMPv3 uses DES (should use AES)")
				failed = true
			}
		case strings.Contains(cfg.RawLower, "snmp v3"):
			findings = append(findings, "SNMPv3 configuration found in config")
		default:
			findings = append(findings, "SNMPv3 not configured")
			failed = true
		}
	}

	if len(cfg.SNMPCommunities) > 0 {
		findings = append(findings, fmt.Sprintf(
			"WARNING: SNMP community strings found (v1/v2c): %d communities", len(cfg.SNMPCommunities)))
		if v3Rule {
			failed = true
		}
	}

	if failed {
		return models.CheckFail, strings.Join(findings, "\n")
	}
	if len(findings) == 0 {
		return models.CheckNotReviewed, "SNMP configuration not detected (may be disabled)"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

func checkNTP(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	title := strings.ToLower(rule.Title)
	var findings []string

	switch {
	case len(cfg.NTPServers) > 0:
		findings = append(findings, fmt.Sprintf("NTP servers configured: %s ✓", strings.Join(cfg.NTPServers, ", ")))
	case strings.Contains(cfg.RawLower, "ntp") && strings.Contains(cfg.RawLower, "server"):
		findings = append(findings, "NTP server configuration found in config ✓")
	default:
		return models.CheckFail, "No NTP servers configured"
	}

	if strings.Contains(title, "authenticat") {
		switch {
		case cfg.NTPAuthentication:
			findings = append(findings, "NTP authentication is configured ✓")
		case strings.Contains(cfg.Raw, "authentication-key"):
			findings = append(findings, "NTP authentication-key found in config ✓")
		default:
			findings = append(findings, "NTP authentication not explicitly configured")
		}
	}

	return models.CheckPass, strings.Join(findings, "\n")
}

func checkLogging(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	title := strings.ToLower(rule.Title)
	var findings []string
	failed := false

	switch {
	case len(cfg.SyslogHosts) > 0:
		findings = append(findings, fmt.Sprintf("Syslog servers configured: %s ✓", strings.Join(cfg.SyslogHosts, ", ")))
	case strings.Contains(cfg.RawLower, "syslog") && strings.Contains(cfg.RawLower, "host"):
		findings = append(findings, "Syslog host configuration found in config ✓")
	default:
		findings = append(findings, "No remote syslog servers configured")
		if strings.Contains(title, "centralized") || strings.Contains(title, "remote") {
			failed = true
		}
	}

	if cfg.SecurityLogPresent {
		findings = append(findings, "Security logging is configured ✓")
		if n := len(cfg.SecurityLogStreams); n > 0 {
			findings = append(findings, fmt.Sprintf("Security log streams configured: %d ✓", n))
		}
	} else if strings.Contains(cfg.RawLower, "security log") {
		findings = append(findings, "Security log configuration found in config ✓")
	}

	if strings.Contains(title, "policy") || strings.Contains(title, "firewall") {
		logActions := 0
		for _, a := range cfg.PolicyActions {
			if strings.Contains(strings.ToLower(a), "log") {
				logActions++
			}
		}
		if logActions > 0 {
			findings = append(findings, fmt.Sprintf("Policy logging actions found: %d ✓", logActions))
		}
		if strings.Contains(cfg.Raw, "then log") {
			findings = append(findings, "Policy 'then log' statements found in config ✓")
		}
	}

	if failed {
		return models.CheckFail, strings.Join(findings, "\n")
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

func checkAuthentication(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	if len(cfg.AuthenticationOrder) > 0 {
		findings = append(findings, fmt.Sprintf("Authentication order: %s ✓", strings.Join(cfg.AuthenticationOrder, " ")))
	} else if strings.Contains(cfg.Raw, "authentication-order") {
		findings = append(findings, "Authentication order configured ✓")
	}

	if len(cfg.TacplusServers) > 0 {
		findings = append(findings, fmt.Sprintf("TACACS+ servers: %s ✓", strings.Join(cfg.TacplusServers, ", ")))
	} else if strings.Contains(cfg.RawLower, "tacplus") {
		findings = append(findings, "TACACS+ configuration found ✓")
	}

	if len(cfg.RadiusServers) > 0 {
		findings = append(findings, fmt.Sprintf("RADIUS servers: %s ✓", strings.Join(cfg.RadiusServers, ", ")))
	} else if strings.Contains(cfg.RawLower, "radius") {
		findings = append(findings, "RADIUS configuration found ✓")
	}

	if len(findings) == 0 {
		return models.CheckFail, "No centralized authentication configured"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

// screenProtections is the fixed set the screen handler looks for.
var screenProtections = []struct{ pattern, name string }{
	{"syn-flood", "SYN flood protection"},
	{"ping-death", "Ping of death protection"},
	{"land", "LAND attack protection"},
	{"tear-drop", "Teardrop protection"},
	{"spoofing", "IP spoofing protection"},
	{"source-route", "Source route protection"},
	{"winnuke", "WinNuke protection"},
}

func checkSecurityScreen(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	if cfg.ScreenIDSEnabled {
		findings = append(findings, "Security screen IDS option configured ✓")
	}
	for _, p := range screenProtections {
		if strings.Contains(cfg.RawLower, p.pattern) {
			findings = append(findings, p.name+" ✓")
		}
	}
	for name, zone := range cfg.Zones {
		if zone.Screen != "" {
			findings = append(findings, fmt.Sprintf("Screen applied to zone '%s': %s ✓", name, zone.Screen))
		}
	}

	if len(findings) == 0 {
		if strings.Contains(cfg.RawLower, "screen") && strings.Contains(cfg.RawLower, "ids-option") {
			return models.CheckPass, "Security screen configuration found in config"
		}
		return models.CheckFail, "No security screens configured"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

func checkSecurityPolicy(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	switch {
	case cfg.DefaultDeny:
		findings = append(findings, "Default policy: deny-all ✓")
	case strings.Contains(cfg.Raw, "default-policy") && strings.Contains(cfg.Raw, "deny-all"):
		findings = append(findings, "Default deny-all policy found ✓")
	case cfg.DefaultPermit || (strings.Contains(cfg.Raw, "default-policy") && strings.Contains(cfg.Raw, "permit-all")):
		findings = append(findings, "WARNING: Default permit-all policy found")
		return models.CheckFail, strings.Join(findings, "\n")
	}

	if len(cfg.Zones) > 0 {
		names := make([]string, 0, len(cfg.Zones))
		for name := range cfg.Zones {
			names = append(names, name)
		}
		findings = append(findings, fmt.Sprintf("Security zones configured: %s ✓", strings.Join(names, ", ")))
	} else if strings.Contains(cfg.Raw, "security-zone") {
		findings = append(findings, "Security zones found in config ✓")
	}

	if strings.Contains(cfg.Raw, "from-zone") && strings.Contains(cfg.Raw, "to-zone") {
		findings = append(findings, "Zone-to-zone policies configured ✓")
	}

	if len(findings) == 0 {
		return models.CheckNotReviewed, "Security policy configuration needs manual review"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

var idleTimeoutRe = regexp.MustCompile(`idle-timeout\s+(\d+)`)

func checkSessionTimeout(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	if m := idleTimeoutRe.FindStringSubmatch(cfg.Raw); m != nil {
		timeout, _ := strconv.Atoi(m[1])
		findings = append(findings, fmt.Sprintf("Idle timeout configured: %d minutes", timeout))
		if timeout <= 10 {
			findings = append(findings, "Timeout is 10 minutes or less ✓")
		} else {
			findings = append(findings, "WARNING: Timeout exceeds 10 minutes")
		}
	}

	if strings.Contains(cfg.RawLower, "cli idle-timeout") {
		findings = append(findings, "CLI idle-timeout configured ✓")
	}

	if len(findings) == 0 {
		return models.CheckFail, "No session timeout configuration found"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

func checkVPN(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	title := strings.ToLower(rule.Title)
	var findings []string

	if cfg.IKEPresent {
		if strings.Contains(title, "aes256") || strings.Contains(title, "encryption") {
			if strings.Contains(cfg.RawLower, "aes256") || strings.Contains(cfg.RawLower, "aes-256") {
				findings = append(findings, "IKE AES-256 encryption found ✓")
			}
		}
		if strings.Contains(title, "diffie-hellman") || strings.Contains(title, "group") {
			if strings.Contains(cfg.RawLower, "group14") || strings.Contains(cfg.RawLower, "group19") ||
				strings.Contains(cfg.RawLower, "group20") {
				findings = append(findings, "Strong DH group configured ✓")
			}
		}
		findings = append(findings, "IKE configuration found ✓")
	} else if strings.Contains(cfg.RawLower, "ike") {
		findings = append(findings, "IKE configuration found in config")
	}

	if cfg.IPsecPresent {
		findings = append(findings, "IPsec configuration found ✓")
	} else if strings.Contains(cfg.RawLower, "ipsec") {
		findings = append(findings, "IPsec configuration found in config")
	}

	if len(findings) == 0 {
		return models.CheckNotApplicable, "VPN not configured on this device"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

func checkIDP(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	switch {
	case cfg.IDPPresent:
		if cfg.IDPActivePolicy != "" {
			findings = append(findings, fmt.Sprintf("IDP active policy: %s ✓", cfg.IDPActivePolicy))
		}
		if cfg.IDPSecurityPackage {
			findings = append(findings, "IDP security package configured ✓")
		}
		findings = append(findings, "IDP configuration found ✓")
	case strings.Contains(cfg.RawLower, "idp"):
		findings = append(findings, "IDP configuration found in config")
	default:
		return models.CheckNotApplicable, "IDP not configured on this device"
	}

	return models.CheckPass, strings.Join(findings, "\n")
}

func checkBanner(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	if cfg.LoginBanner != "" {
		banner := cfg.LoginBanner
		if len(banner) > 100 {
			banner = banner[:100]
		}
		return models.CheckPass, fmt.Sprintf("Login banner configured: '%s...'", banner)
	}
	if strings.Contains(cfg.Raw, "message") && strings.Contains(cfg.Raw, "login") {
		return models.CheckPass, "Login message/banner found in config ✓"
	}
	return models.CheckFail, "No login banner configured"
}

func checkPasswordPolicy(e *Evaluator, _ *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	if cfg.RetryOptionsPresent {
		findings = append(findings, "Login retry options configured ✓")
		if strings.Contains(cfg.Raw, "lockout-period") {
			findings = append(findings, "Account lockout period configured ✓")
		}
	}
	if strings.Contains(cfg.Raw, "retry-options") {
		findings = append(findings, "Retry options found in config ✓")
	}
	if strings.Contains(cfg.RawLower, "backoff") {
		findings = append(findings, "Login backoff configured ✓")
	}

	if len(findings) == 0 {
		return models.CheckFail, "No password/lockout policy found"
	}
	return models.CheckPass, strings.Join(findings, "\n")
}

var setPatternRe = regexp.MustCompile(`set\s+([\w\-\s]+?)(?:\n|$|;)`)

// checkByPattern is the fallback: extract up to five `set …` patterns from
// the fix text and pass when a three-word prefix of any appears in the raw
// configuration.
func checkByPattern(e *Evaluator, rule *models.STIGRule) (models.CheckStatus, string) {
	cfg := e.cfg
	var findings []string

	patterns := setPatternRe.FindAllStringSubmatch(strings.ToLower(rule.FixText), -1)
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	for _, m := range patterns {
		words := strings.Fields(m[1])
		if len(words) > 3 {
			words = words[:3]
		}
		if len(words) == 0 {
			continue
		}
		escaped := make([]string, len(words))
		for i, w := range words {
			escaped[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`(?i)` + strings.Join(escaped, `\s+`))
		if err != nil {
			continue
		}
		if re.MatchString(cfg.Raw) {
			findings = append(findings, fmt.Sprintf("Pattern found: %s... ✓", strings.Join(words, " ")))
		}
	}

	if len(findings) > 0 {
		return models.CheckPass, strings.Join(findings, "\n")
	}
	return models.CheckNotReviewed, "Manual review required - automated check not available for this rule"
}

func containsFold(xs []string, sub string) bool {
	for _, x := range xs {
		if strings.Contains(strings.ToLower(x), sub) {
			return true
		}
	}
	return false
}
