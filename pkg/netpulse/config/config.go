// Package config provides the service configuration for NetPulse.
//
// Precedence, lowest to highest: built-in defaults → environment variables →
// optional YAML file (NETPULSE_CONFIG_FILE or -config flag) → command-line
// flags applied in cmd/netpulse.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds every tunable of the NetPulse core. Zero values are filled by
// withDefaults; Validate rejects combinations the process cannot start with.
type Config struct {
	// External services.
	PostgresURL string // POSTGRES_URL
	NATSURL     string // NATS_URL
	TSDBURL     string // TSDB_URL (VictoriaMetrics-compatible)

	// CredentialSecret is the process-wide secret the credential cipher
	// derives its AES key from. Required when SNMP polling is enabled.
	CredentialSecret string // NETPULSE_CREDENTIAL_KEY

	// Polling.
	PollInterval       time.Duration // default 60s
	PollBatchSize      int           // default 100
	MaxConcurrentPolls int           // default 20
	SNMPTimeout        time.Duration // default 5s
	SNMPRetries        int           // default 2
	WalkMaxRows        int           // default 200
	PingCount          int           // default 3
	PingTimeout        time.Duration // default 2s per echo

	// Syslog ingest.
	SyslogListenAddr    string        // default "0.0.0.0:514"
	SyslogBatchSize     int           // default 100
	SyslogFlushInterval time.Duration // default 5s
	BufferCheckInterval time.Duration // default 5m

	// STIG engine.
	STIGLibraryPath string // STIG_LIBRARY_PATH

	// Self-observability.
	MetricsListenAddr string // default "0.0.0.0:9470"
}

// FromEnv builds a Config from environment variables, falling back to the
// documented defaults for anything unset.
func FromEnv() Config {
	cfg := Config{
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		NATSURL:          envOr("NATS_URL", "nats://localhost:4222"),
		TSDBURL:          envOr("TSDB_URL", "http://localhost:8428"),
		CredentialSecret: os.Getenv("NETPULSE_CREDENTIAL_KEY"),
		SyslogListenAddr: envOr("SYSLOG_LISTEN_ADDR", "0.0.0.0:514"),
		STIGLibraryPath:  os.Getenv("STIG_LIBRARY_PATH"),
	}
	cfg.withDefaults()
	return cfg
}

// fileConfig is the YAML shape of the config file. Durations are strings in
// Go duration syntax ("30s", "5m"); pointers distinguish absent from zero.
type fileConfig struct {
	PostgresURL      *string `yaml:"postgres_url"`
	NATSURL          *string `yaml:"nats_url"`
	TSDBURL          *string `yaml:"tsdb_url"`
	CredentialSecret *string `yaml:"credential_secret"`

	PollInterval       *string `yaml:"poll_interval"`
	PollBatchSize      *int    `yaml:"poll_batch_size"`
	MaxConcurrentPolls *int    `yaml:"max_concurrent_polls"`
	SNMPTimeout        *string `yaml:"snmp_timeout"`
	SNMPRetries        *int    `yaml:"snmp_retries"`
	WalkMaxRows        *int    `yaml:"walk_max_rows"`
	PingCount          *int    `yaml:"ping_count"`
	PingTimeout        *string `yaml:"ping_timeout"`

	SyslogListenAddr    *string `yaml:"syslog_listen_addr"`
	SyslogBatchSize     *int    `yaml:"syslog_batch_size"`
	SyslogFlushInterval *string `yaml:"syslog_flush_interval"`
	BufferCheckInterval *string `yaml:"buffer_check_interval"`

	STIGLibraryPath   *string `yaml:"stig_library_path"`
	MetricsListenAddr *string `yaml:"metrics_listen_addr"`
}

// LoadFile overlays YAML settings from path onto c. Fields absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setDur := func(dst *time.Duration, src *string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("config: %s: bad duration %q: %w", path, *src, err)
		}
		*dst = d
		return nil
	}

	setStr(&c.PostgresURL, file.PostgresURL)
	setStr(&c.NATSURL, file.NATSURL)
	setStr(&c.TSDBURL, file.TSDBURL)
	setStr(&c.CredentialSecret, file.CredentialSecret)
	setStr(&c.SyslogListenAddr, file.SyslogListenAddr)
	setStr(&c.STIGLibraryPath, file.STIGLibraryPath)
	setStr(&c.MetricsListenAddr, file.MetricsListenAddr)

	setInt(&c.PollBatchSize, file.PollBatchSize)
	setInt(&c.MaxConcurrentPolls, file.MaxConcurrentPolls)
	setInt(&c.SNMPRetries, file.SNMPRetries)
	setInt(&c.WalkMaxRows, file.WalkMaxRows)
	setInt(&c.PingCount, file.PingCount)
	setInt(&c.SyslogBatchSize, file.SyslogBatchSize)

	for _, f := range []struct {
		dst *time.Duration
		src *string
	}{
		{&c.PollInterval, file.PollInterval},
		{&c.SNMPTimeout, file.SNMPTimeout},
		{&c.PingTimeout, file.PingTimeout},
		{&c.SyslogFlushInterval, file.SyslogFlushInterval},
		{&c.BufferCheckInterval, file.BufferCheckInterval},
	} {
		if err := setDur(f.dst, f.src); err != nil {
			return err
		}
	}

	c.withDefaults()
	return nil
}

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	if c.PostgresURL == "" {
		return fmt.Errorf("config: POSTGRES_URL is required")
	}
	if c.PollBatchSize <= 0 {
		return fmt.Errorf("config: poll_batch_size must be positive")
	}
	if c.MaxConcurrentPolls <= 0 {
		return fmt.Errorf("config: max_concurrent_polls must be positive")
	}
	return nil
}

func (c *Config) withDefaults() {
	if c.NATSURL == "" {
		c.NATSURL = "nats://localhost:4222"
	}
	if c.TSDBURL == "" {
		c.TSDBURL = "http://localhost:8428"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.PollBatchSize <= 0 {
		c.PollBatchSize = 100
	}
	if c.MaxConcurrentPolls <= 0 {
		c.MaxConcurrentPolls = 20
	}
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
	if c.SyslogListenAddr == "" {
		c.SyslogListenAddr = "0.0.0.0:514"
	}
	if c.SyslogBatchSize <= 0 {
		c.SyslogBatchSize = 100
	}
	if c.SyslogFlushInterval <= 0 {
		c.SyslogFlushInterval = 5 * time.Second
	}
	if c.BufferCheckInterval <= 0 {
		c.BufferCheckInterval = 5 * time.Minute
	}
	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = "0.0.0.0:9470"
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
