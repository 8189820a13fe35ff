package junos_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/stig/junos"
)

func evalRule(t *testing.T, config string, rule models.STIGRule) (models.CheckStatus, string) {
	t.Helper()
	cfg := junos.Parse(config)
	return junos.NewEvaluator(cfg).Evaluate(&rule)
}

// ─────────────────────────────────────────────────────────────────────────────
// Category routing
// ─────────────────────────────────────────────────────────────────────────────

func TestDetermineCategory(t *testing.T) {
	cases := []struct {
		title string
		check string
		want  junos.Category
	}{
		{"The device must use IPsec tunnels", "", junos.CategoryVPN},
		{"IDP attack signature updates", "", junos.CategoryIDPS},
		{"SSH must deny root logon", "", junos.CategoryNDM},
		{"The firewall must deny traffic by default", "", junos.CategoryALG},
		{"Some rule", "verify ike proposals", junos.CategoryVPN},
		{"Some rule", "check snmp settings", junos.CategoryNDM},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, junos.DetermineCategory(tc.title, tc.check),
			"title=%q check=%q", tc.title, tc.check)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SSH handler
// ─────────────────────────────────────────────────────────────────────────────

const sshDenyConfig = `system {
    services {
        ssh {
            root-login deny;
        }
    }
}
`

const sshNoDenyConfig = `system {
    services {
        ssh {
            protocol-version v2;
        }
    }
}
`

func TestSSHRootLoginDenyPasses(t *testing.T) {
	status, finding := evalRule(t, sshDenyConfig, models.STIGRule{
		VulnID: "V-214518", Title: "The device must deny SSH root logon attempts", Severity: models.SeverityHigh,
	})

	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "SSH root-login: deny ✓")
}

func TestSSHRootLoginDenyViaSetStyleConfig(t *testing.T) {
	// Flat set-style dump: the typed parser sees nothing, the raw probe must
	// still find the directive.
	status, finding := evalRule(t, "set system services ssh root-login deny\n", models.STIGRule{
		VulnID: "V-214518", Title: "The device must deny SSH root logon attempts",
	})

	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "SSH root-login deny found in config ✓")
}

func TestSSHRootLoginMissingFails(t *testing.T) {
	status, finding := evalRule(t, sshNoDenyConfig, models.STIGRule{
		VulnID: "V-214518", Title: "The device must deny SSH root logon attempts",
	})

	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "SSH root-login is not set to deny")
}

func TestSSHNotConfiguredFails(t *testing.T) {
	status, finding := evalRule(t, "routing-options {\n static;\n}\n", models.STIGRule{
		Title: "The device must use SSH for management access",
	})

	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "SSH service not configured")
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMP handler
// ─────────────────────────────────────────────────────────────────────────────

func TestSNMPv3WithSHAAndAESPasses(t *testing.T) {
	config := `snmp {
    v3 {
        usm {
            local-engine {
                user monitor {
                    authentication-sha256 {
                        authentication-key "k";
                    }
                    privacy-aes128 {
                        privacy-key "k";
                    }
                }
            }
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must use SNMPv3 with FIPS-validated cryptography",
	})

	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "SNMPv3 USM is configured ✓")
	assert.Contains(t, finding, "SHA authentication ✓")
	assert.Contains(t, finding, "AES privacy ✓")
}

func TestSNMPCommunitiesFailV3Rule(t *testing.T) {
	config := `snmp {
    community public {
        authorization read-only;
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must use SNMPv3",
	})

	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "community strings found")
}

// ─────────────────────────────────────────────────────────────────────────────
// NTP / logging / authentication
// ─────────────────────────────────────────────────────────────────────────────

func TestNTPConfiguredPasses(t *testing.T) {
	config := `system {
    ntp {
        server 192.168.100.10;
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{Title: "The device must use an NTP server"})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "192.168.100.10")
}

func TestNTPMissingFails(t *testing.T) {
	status, finding := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title: "The device must use an NTP server",
	})
	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "No NTP servers configured")
}

func TestCentralizedLoggingMissingFails(t *testing.T) {
	status, finding := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title: "The device must send logs to a centralized syslog server",
	})
	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "No remote syslog servers configured")
}

func TestRemoteSyslogPasses(t *testing.T) {
	config := `system {
    syslog {
        host 192.168.100.50 {
            any any;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must send logs to a centralized syslog server",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "192.168.100.50")
}

func TestAuthenticationOrderPasses(t *testing.T) {
	config := `system {
    authentication-order [ tacplus password ];
    tacplus-server {
        192.168.100.20 secret "s";
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must use centralized authentication",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "tacplus")
}

// ─────────────────────────────────────────────────────────────────────────────
// Screens, policies, timeouts
// ─────────────────────────────────────────────────────────────────────────────

func TestScreenProtectionsPass(t *testing.T) {
	config := `security {
    screen {
        ids-option untrust-screen {
            tcp {
                syn-flood;
                land;
            }
        }
    }
    zones {
        security-zone UNTRUST {
            screen untrust-screen;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The firewall must employ screens to protect against attack",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "SYN flood protection ✓")
	assert.Contains(t, finding, "Screen applied to zone 'UNTRUST'")
}

func TestNoScreensFail(t *testing.T) {
	status, finding := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title: "The firewall must employ screens to protect against attack",
	})
	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "No security screens configured")
}

func TestDefaultDenyPolicyPasses(t *testing.T) {
	config := `security {
    policies {
        default-policy {
            deny-all;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The firewall must deny network traffic by default policy",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "deny-all ✓")
}

func TestDefaultPermitPolicyFails(t *testing.T) {
	config := `security {
    policies {
        default-policy {
            permit-all;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The firewall must deny network traffic by default policy",
	})
	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "permit-all")
}

func TestIdleTimeoutWithinLimitPasses(t *testing.T) {
	config := `system {
    login {
        class admin {
            idle-timeout 10;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must enforce a session idle timeout",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "10 minutes or less ✓")
}

func TestMissingTimeoutFails(t *testing.T) {
	status, finding := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title: "The device must enforce a session idle timeout",
	})
	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "No session timeout configuration found")
}

// ─────────────────────────────────────────────────────────────────────────────
// VPN / IDP / banner / password
// ─────────────────────────────────────────────────────────────────────────────

func TestVPNNotConfiguredIsNotApplicable(t *testing.T) {
	status, finding := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title: "The VPN must use AES256 encryption for IPsec tunnels",
	})
	assert.Equal(t, models.CheckNotApplicable, status)
	assert.Contains(t, finding, "VPN not configured")
}

func TestVPNWithAES256Passes(t *testing.T) {
	config := `security {
    ike {
        proposal p1 {
            encryption-algorithm aes-256-cbc;
            dh-group group14;
        }
    }
    ipsec {
        proposal p2 {
            encryption-algorithm aes-256-gcm;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The VPN must use AES256 encryption for IPsec tunnels",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "IKE configuration found ✓")
	assert.Contains(t, finding, "IKE AES-256 encryption found ✓")
}

func TestIDPNotConfiguredIsNotApplicable(t *testing.T) {
	status, _ := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title: "The IDPS must inspect traffic for attack signature matches",
	})
	assert.Equal(t, models.CheckNotApplicable, status)
}

func TestBannerPresentPasses(t *testing.T) {
	config := `system {
    login {
        message "Authorized use only";
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must display a logon banner",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "Login banner configured")
}

func TestBannerMissingFails(t *testing.T) {
	status, finding := evalRule(t, "routing-options {\n    static;\n}\n", models.STIGRule{
		Title: "The device must display a logon banner",
	})
	assert.Equal(t, models.CheckFail, status)
	assert.Contains(t, finding, "No login banner configured")
}

func TestPasswordLockoutPasses(t *testing.T) {
	config := `system {
    login {
        retry-options {
            lockout-period 15;
        }
    }
}
`
	status, finding := evalRule(t, config, models.STIGRule{
		Title: "The device must enforce account lockout after failed attempts",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "retry options configured ✓")
}

// ─────────────────────────────────────────────────────────────────────────────
// Pattern fallback
// ─────────────────────────────────────────────────────────────────────────────

func TestPatternFallbackMatchesFixText(t *testing.T) {
	config := "set forwarding-options sampling instance one\n"
	status, finding := evalRule(t, config, models.STIGRule{
		Title:   "The router must offload flow records",
		FixText: "configure with:\nset forwarding-options sampling instance one\n",
	})
	assert.Equal(t, models.CheckPass, status)
	assert.Contains(t, finding, "Pattern found: forwarding-options sampling instance")
}

func TestPatternFallbackUnknownIsNotReviewed(t *testing.T) {
	status, finding := evalRule(t, "system {\n    host-name r1;\n}\n", models.STIGRule{
		Title:     "The router must comply with an exotic requirement",
		CheckText: "manually verify the exotic requirement",
	})
	assert.Equal(t, models.CheckNotReviewed, status)
	assert.Contains(t, finding, "Manual review required")
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine contract
// ─────────────────────────────────────────────────────────────────────────────

// Every PASS and every FAIL carries a non-empty finding — across a grid of
// rules and configurations.
func TestFindingContract(t *testing.T) {
	configs := []string{
		srxConfig,
		sshDenyConfig,
		sshNoDenyConfig,
		"system {\n    host-name bare;\n}\n",
	}
	rules := []models.STIGRule{
		{Title: "The device must deny SSH root logon attempts"},
		{Title: "The device must use SNMPv3"},
		{Title: "The device must use an NTP server"},
		{Title: "The device must send logs to a centralized syslog server"},
		{Title: "The device must use centralized authentication"},
		{Title: "The firewall must employ screens to protect against attack"},
		{Title: "The firewall must deny network traffic by default policy"},
		{Title: "The device must enforce a session idle timeout"},
		{Title: "The VPN must use IPsec tunnels"},
		{Title: "The IDPS must inspect traffic for attack signatures"},
		{Title: "The device must display a logon banner"},
		{Title: "The device must enforce account lockout"},
	}

	for _, config := range configs {
		cfg := junos.Parse(config)
		ev := junos.NewEvaluator(cfg)
		for i := range rules {
			status, finding := ev.Evaluate(&rules[i])
			if status == models.CheckPass || status == models.CheckFail {
				require.NotEmpty(t, strings.TrimSpace(finding),
					"rule %q produced %s with empty finding", rules[i].Title, status)
			}
		}
	}
}

func TestEvaluateAllProducesOneResultPerRule(t *testing.T) {
	cfg := junos.Parse(srxConfig)
	rules := []models.STIGRule{
		{VulnID: "V-1", Title: "The device must deny SSH root logon attempts", Severity: models.SeverityHigh},
		{VulnID: "V-2", Title: "The device must use an NTP server", Severity: models.SeverityMedium},
		{VulnID: "V-3", Title: "The device must display a logon banner", Severity: models.SeverityLow},
	}

	results := junos.NewEvaluator(cfg).EvaluateAll("job-1", rules)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, "job-1", res.JobID)
		assert.Equal(t, rules[i].VulnID, res.RuleID)
		assert.Equal(t, rules[i].Severity, res.Severity)
		assert.Equal(t, models.CheckPass, res.Status)
		assert.NotEmpty(t, res.FindingDetails)
	}
}
