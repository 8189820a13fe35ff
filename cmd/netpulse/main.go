// Command netpulse is the GridWatch network telemetry and compliance core.
//
// It runs three data-plane pipelines in one process: the SNMPv3 poll
// scheduler/collector, the syslog ingestor on UDP 514, and the STIG audit
// engine. Configuration comes from environment variables, an optional YAML
// file, and the flags below — later sources win.
//
// Usage:
//
//	netpulse [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridwatch/netpulse/pkg/netpulse/app"
	"github.com/gridwatch/netpulse/pkg/netpulse/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "netpulse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		logLevel string
		logFmt   string
		cfgFile  string

		postgresURL string
		natsURL     string
		tsdbURL     string

		pollInterval  int
		pollBatch     int
		maxConcurrent int

		syslogAddr  string
		stigLibrary string
		metricsAddr string
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&cfgFile, "config", "", "Optional YAML config file (overrides NETPULSE_CONFIG_FILE)")

	flag.StringVar(&postgresURL, "db.url", "", "Override POSTGRES_URL")
	flag.StringVar(&natsURL, "nats.url", "", "Override NATS_URL")
	flag.StringVar(&tsdbURL, "tsdb.url", "", "Override TSDB_URL")

	flag.IntVar(&pollInterval, "poll.interval", 0, "Poll cycle cadence in seconds (default 60)")
	flag.IntVar(&pollBatch, "poll.batch", 0, "Devices claimed per cycle (default 100)")
	flag.IntVar(&maxConcurrent, "poll.concurrency", 0, "Max in-flight polls (default 20)")

	flag.StringVar(&syslogAddr, "syslog.listen", "", "Syslog UDP bind address (default 0.0.0.0:514)")
	flag.StringVar(&stigLibrary, "stig.library", "", "Override STIG_LIBRARY_PATH")
	flag.StringVar(&metricsAddr, "metrics.listen", "", "Prometheus metrics address (default 0.0.0.0:9470)")

	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// ── Config ───────────────────────────────────────────────────────────
	cfg := config.FromEnv()
	if cfgFile == "" {
		cfgFile = os.Getenv("NETPULSE_CONFIG_FILE")
	}
	if cfgFile != "" {
		if err := cfg.LoadFile(cfgFile); err != nil {
			return err
		}
	}
	applyFlagOverrides(&cfg, postgresURL, natsURL, tsdbURL, syslogAddr, stigLibrary, metricsAddr,
		pollInterval, pollBatch, maxConcurrent)

	// ── Run ──────────────────────────────────────────────────────────────
	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("netpulse: running — press Ctrl-C to stop")
	<-ctx.Done()
	logger.Info("netpulse: received shutdown signal")

	application.Stop()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}
	return slog.New(handler), nil
}

func applyFlagOverrides(cfg *config.Config, postgresURL, natsURL, tsdbURL, syslogAddr, stigLibrary, metricsAddr string, pollInterval, pollBatch, maxConcurrent int) {
	if postgresURL != "" {
		cfg.PostgresURL = postgresURL
	}
	if natsURL != "" {
		cfg.NATSURL = natsURL
	}
	if tsdbURL != "" {
		cfg.TSDBURL = tsdbURL
	}
	if syslogAddr != "" {
		cfg.SyslogListenAddr = syslogAddr
	}
	if stigLibrary != "" {
		cfg.STIGLibraryPath = stigLibrary
	}
	if metricsAddr != "" {
		cfg.MetricsListenAddr = metricsAddr
	}
	if pollInterval > 0 {
		cfg.PollInterval = time.Duration(pollInterval) * time.Second
	}
	if pollBatch > 0 {
		cfg.PollBatchSize = pollBatch
	}
	if maxConcurrent > 0 {
		cfg.MaxConcurrentPolls = maxConcurrent
	}
}
