// Package junos parses brace-nested JunOS configurations and evaluates STIG
// rules against them.
//
// The parser is a pattern-extraction pass, not a full grammar: it tracks the
// brace-section stack, dispatches lines under known roots (system, security,
// snmp, interfaces, firewall, routing-options) to typed accumulators, and is
// tolerant of unknown constructs, indentation, and trailing semicolons.
package junos

import (
	"regexp"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Parsed configuration
// ─────────────────────────────────────────────────────────────────────────────

// SSHConfig captures system services ssh settings.
type SSHConfig struct {
	Present         bool
	RootLogin       string // "deny", "allow", or ""
	ProtocolVersion string
	Ciphers         []string
	MACs            []string
	KeyExchange     []string
}

// Zone is one security zone with its protections.
type Zone struct {
	Name            string
	Screen          string
	Interfaces      []string
	HostInboundList []string
}

// Filter is one firewall filter and its terms.
type Filter struct {
	Name           string
	Terms          []string
	LoggingEnabled bool
}

// SNMPv3Config captures the USM indicators the SNMP rules look for.
type SNMPv3Config struct {
	USMConfigured bool
	AuthSHA       bool
	AuthMD5       bool
	PrivAES       bool
	PrivDES       bool
}

// SecurityConfig is the typed result of parsing one configuration.
type SecurityConfig struct {
	Hostname string
	Version  string

	// Raw is the original text; RawLower is cached for the substring probes
	// the evaluator falls back to when the typed extraction missed a form.
	Raw      string
	RawLower string

	// Sections maps "a > b > c" paths to their joined body lines.
	Sections map[string]string

	// System.
	SSH                 SSHConfig
	TelnetEnabled       bool
	FTPEnabled          bool
	WebManagement       bool
	NetconfEnabled      bool
	LoginBanner         string
	RetryOptionsPresent bool
	SyslogHosts         []string
	SyslogSourceAddress string
	NTPServers          []string
	NTPAuthentication   bool
	AuthenticationOrder []string
	TacplusServers      []string
	RadiusServers       []string

	// SNMP.
	SNMPCommunities []string
	SNMPv3          SNMPv3Config

	// Security.
	SecurityLogPresent bool
	SecurityLogStreams []string
	ScreenIDSEnabled   bool
	Zones              map[string]*Zone
	DefaultDeny        bool
	DefaultPermit      bool
	PolicyActions      []string
	IKEPresent         bool
	IKEProposals       []string
	IPsecPresent       bool
	IPsecProposals     []string
	IPsecVPNs          []string
	IDPPresent         bool
	IDPActivePolicy    string
	IDPSecurityPackage bool

	// Interfaces and filters.
	Interfaces      map[string][]string
	FirewallFilters map[string]*Filter

	// Routing.
	RoutingOptions []string
}

// ─────────────────────────────────────────────────────────────────────────────
// Parser
// ─────────────────────────────────────────────────────────────────────────────

var (
	hostNameRe  = regexp.MustCompile(`host-name\s+(\S+)`)
	bannerRe    = regexp.MustCompile(`message\s+"([^"]+)"`)
	syslogHost  = regexp.MustCompile(`^host\s+(\S+)`)
	ntpServerRe = regexp.MustCompile(`^server\s+(\S+)`)
	authOrderRe = regexp.MustCompile(`authentication-order\s+\[(.*?)\]`)
	ipRe        = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
	communityRe = regexp.MustCompile(`community\s+"?([^"\s;]+)"?`)
	zoneRe      = regexp.MustCompile(`security-zone\s+(\S+)`)
	filterRe    = regexp.MustCompile(`filter\s+(\S+)`)
	ifaceRe     = regexp.MustCompile(`interfaces > (\S+)`)
)

// Parse extracts the typed security configuration from content.
func Parse(content string) *SecurityConfig {
	cfg := &SecurityConfig{
		Raw:             content,
		RawLower:        strings.ToLower(content),
		Sections:        make(map[string]string),
		Zones:           make(map[string]*Zone),
		Interfaces:      make(map[string][]string),
		FirewallFilters: make(map[string]*Filter),
	}

	var stack []string
	sectionLines := make(map[string][]string)

	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}

		switch {
		case strings.HasSuffix(stripped, "{"):
			name := strings.TrimSpace(strings.TrimSuffix(stripped, "{"))
			// The section header itself carries data (e.g. "host 10.0.0.50 {"
			// under syslog), so it runs through the accumulators under the
			// parent path before the push.
			cfg.parseLine(name, strings.Join(stack, " > "))
			stack = append(stack, name)
			path := strings.Join(stack, " > ")
			if _, ok := sectionLines[path]; !ok {
				sectionLines[path] = nil
			}

		case stripped == "}":
			if len(stack) > 0 {
				path := strings.Join(stack, " > ")
				if lines, ok := sectionLines[path]; ok {
					cfg.Sections[path] = strings.Join(lines, "\n")
				}
				stack = stack[:len(stack)-1]
			}

		default:
			if len(stack) > 0 {
				path := strings.Join(stack, " > ")
				sectionLines[path] = append(sectionLines[path], stripped)
			}
			cfg.parseLine(stripped, strings.Join(stack, " > "))
		}
	}

	return cfg
}

// parseLine dispatches one cleaned line to the per-root accumulators.
func (c *SecurityConfig) parseLine(line, path string) {
	clean := strings.TrimSpace(strings.TrimSuffix(line, ";"))

	if strings.Contains(path, "system") {
		c.parseSystem(clean, path)
	}
	if strings.Contains(path, "security") {
		c.parseSecurity(clean, path)
	}
	if strings.Contains(path, "snmp") || strings.HasPrefix(clean, "snmp") {
		c.parseSNMP(clean, path)
	}
	if strings.Contains(path, "interfaces") {
		c.parseInterface(clean, path)
	}
	if strings.Contains(path, "firewall") {
		c.parseFirewall(clean, path)
	}
	if strings.Contains(path, "routing-options") {
		c.RoutingOptions = append(c.RoutingOptions, clean)
	}
}

func (c *SecurityConfig) parseSystem(line, path string) {
	if m := hostNameRe.FindStringSubmatch(line); m != nil {
		c.Hostname = m[1]
	}
	if strings.HasPrefix(line, "version") {
		fields := strings.Fields(line)
		c.Version = fields[len(fields)-1]
	}

	if strings.Contains(path, "login") {
		if strings.Contains(path, "retry-options") || strings.Contains(line, "retry-options") {
			c.RetryOptionsPresent = true
		}
		if m := bannerRe.FindStringSubmatch(line); m != nil {
			c.LoginBanner = m[1]
		}
	}

	if strings.Contains(path, "services") {
		switch {
		case strings.Contains(path, "ssh"):
			c.SSH.Present = true
			switch {
			case strings.Contains(line, "root-login"):
				if strings.Contains(line, "deny") {
					c.SSH.RootLogin = "deny"
				} else {
					c.SSH.RootLogin = "allow"
				}
			case strings.Contains(line, "protocol-version"):
				fields := strings.Fields(line)
				c.SSH.ProtocolVersion = fields[len(fields)-1]
			case strings.Contains(line, "ciphers"):
				c.SSH.Ciphers = append(c.SSH.Ciphers, lastField(line))
			case strings.Contains(line, "macs"):
				c.SSH.MACs = append(c.SSH.MACs, lastField(line))
			case strings.Contains(line, "key-exchange"):
				c.SSH.KeyExchange = append(c.SSH.KeyExchange, lastField(line))
			}
		case strings.Contains(path, "netconf"):
			c.NetconfEnabled = true
		case strings.Contains(path, "web-management"):
			c.WebManagement = true
		case strings.Contains(line, "telnet"):
			c.TelnetEnabled = true
		case strings.Contains(line, "ftp"):
			c.FTPEnabled = true
		}
	}

	if strings.Contains(path, "syslog") {
		if m := syslogHost.FindStringSubmatch(line); m != nil {
			c.SyslogHosts = append(c.SyslogHosts, m[1])
		}
		if strings.Contains(line, "source-address") {
			c.SyslogSourceAddress = lastField(line)
		}
	}

	if strings.Contains(path, "ntp") {
		if m := ntpServerRe.FindStringSubmatch(line); m != nil {
			c.NTPServers = append(c.NTPServers, m[1])
		}
		if strings.Contains(line, "authentication-key") {
			c.NTPAuthentication = true
		}
	}

	if m := authOrderRe.FindStringSubmatch(line); m != nil {
		c.AuthenticationOrder = strings.Fields(m[1])
	}

	if strings.Contains(path, "tacplus-server") {
		if f := strings.Fields(line); len(f) > 0 && ipRe.MatchString(f[0]) {
			c.TacplusServers = append(c.TacplusServers, f[0])
		}
	}
	if strings.Contains(path, "radius-server") {
		if f := strings.Fields(line); len(f) > 0 && ipRe.MatchString(f[0]) {
			c.RadiusServers = append(c.RadiusServers, f[0])
		}
	}
}

func (c *SecurityConfig) parseSecurity(line, path string) {
	if strings.Contains(path, "security > log") {
		c.SecurityLogPresent = true
		if strings.Contains(path, "stream") {
			c.SecurityLogStreams = append(c.SecurityLogStreams, line)
		}
	}

	if strings.Contains(path, "screen") {
		if strings.Contains(path, "ids-option") {
			c.ScreenIDSEnabled = true
		}
	}

	if strings.Contains(path, "policies") {
		if strings.Contains(path, "default-policy") || strings.Contains(line, "default-policy") {
			if strings.Contains(line, "deny-all") {
				c.DefaultDeny = true
			}
			if strings.Contains(line, "permit-all") {
				c.DefaultPermit = true
			}
		}
		if strings.Contains(line, "then log") || strings.Contains(line, "then permit") || strings.Contains(line, "then deny") {
			c.PolicyActions = append(c.PolicyActions, line)
		}
	}

	if strings.Contains(path, "zones") {
		if m := zoneRe.FindStringSubmatch(path); m != nil {
			zone := c.zone(m[1])
			if strings.Contains(line, "screen") {
				zone.Screen = lastField(line)
			}
			if strings.Contains(path, "interfaces") {
				zone.Interfaces = append(zone.Interfaces, line)
			}
			if strings.Contains(path, "host-inbound-traffic") {
				zone.HostInboundList = append(zone.HostInboundList, line)
			}
		}
	}

	if strings.Contains(path, "ike") {
		c.IKEPresent = true
		if strings.Contains(path, "proposal") {
			c.IKEProposals = append(c.IKEProposals, line)
		}
	}
	if strings.Contains(path, "ipsec") {
		c.IPsecPresent = true
		if strings.Contains(path, "proposal") {
			c.IPsecProposals = append(c.IPsecProposals, line)
		}
		if strings.Contains(path, "vpn") {
			c.IPsecVPNs = append(c.IPsecVPNs, line)
		}
	}

	if strings.Contains(path, "idp") {
		c.IDPPresent = true
		if strings.Contains(line, "active-policy") {
			c.IDPActivePolicy = lastField(line)
		}
		if strings.Contains(path, "security-package") {
			c.IDPSecurityPackage = true
		}
	}
}

func (c *SecurityConfig) parseSNMP(line, path string) {
	if m := communityRe.FindStringSubmatch(line); m != nil {
		c.SNMPCommunities = append(c.SNMPCommunities, m[1])
	}

	if strings.Contains(path, "v3") {
		if strings.Contains(path, "usm") {
			c.SNMPv3.USMConfigured = true
		}
		switch {
		case strings.Contains(line, "authentication-sha"):
			c.SNMPv3.AuthSHA = true
		case strings.Contains(line, "authentication-md5"):
			c.SNMPv3.AuthMD5 = true
		}
		switch {
		case strings.Contains(line, "privacy-aes"):
			c.SNMPv3.PrivAES = true
		case strings.Contains(line, "privacy-des"):
			c.SNMPv3.PrivDES = true
		}
	}
}

func (c *SecurityConfig) parseInterface(line, path string) {
	if m := ifaceRe.FindStringSubmatch(path); m != nil {
		c.Interfaces[m[1]] = append(c.Interfaces[m[1]], line)
	}
}

func (c *SecurityConfig) parseFirewall(line, path string) {
	if m := filterRe.FindStringSubmatch(path); m != nil {
		f := c.filter(m[1])
		if strings.Contains(path, "term") {
			f.Terms = append(f.Terms, line)
			if strings.Contains(line, "log") || strings.Contains(line, "syslog") {
				f.LoggingEnabled = true
			}
		}
	}
}

func (c *SecurityConfig) zone(name string) *Zone {
	if z, ok := c.Zones[name]; ok {
		return z
	}
	z := &Zone{Name: name}
	c.Zones[name] = z
	return z
}

func (c *SecurityConfig) filter(name string) *Filter {
	if f, ok := c.FirewallFilters[name]; ok {
		return f
	}
	f := &Filter{Name: name}
	c.FirewallFilters[name] = f
	return f
}

func lastField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[len(fields)-1], ";")
}
