// Package app wires the NetPulse components together and manages their
// lifecycle.
//
// Poll path:
//
//	Scheduler → Collector → Sink → {store, tsdb, bus}
//
// Syslog path (parallel):
//
//	UDP :514 → Ingestor → {store, bus}
//
// STIG path (job-driven):
//
//	bus/API → stig.audit_jobs → Audit Engine → stig.audit_results
//
// The store is the only hard dependency; the bus and the TSDB degrade to
// logged warnings when unreachable at startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gridwatch/netpulse/pkg/netpulse/audit"
	"github.com/gridwatch/netpulse/pkg/netpulse/collector"
	"github.com/gridwatch/netpulse/pkg/netpulse/config"
	"github.com/gridwatch/netpulse/pkg/netpulse/crypto"
	"github.com/gridwatch/netpulse/pkg/netpulse/ingest"
	"github.com/gridwatch/netpulse/pkg/netpulse/obs"
	"github.com/gridwatch/netpulse/pkg/netpulse/scheduler"
	"github.com/gridwatch/netpulse/pkg/netpulse/sink"
	"github.com/gridwatch/netpulse/pkg/netpulse/store"
	"github.com/gridwatch/netpulse/stig/library"
	busnats "github.com/gridwatch/netpulse/transport/nats"
	"github.com/gridwatch/netpulse/transport/tsdb"
)

// App owns every long-lived component. Create with New, run with Start, and
// shut down with Stop.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store    *store.Store
	bus      *busnats.Handler
	sched    *scheduler.Scheduler
	ingestor *ingest.Ingestor
	engine   *audit.Engine
	indexer  *library.Indexer

	metricsSrv *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an App. Nothing is started.
func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start connects the external services and launches every component.
// Database and syslog-bind failures are fatal; bus connection failure
// degrades to running without fan-out.
func (a *App) Start(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// ── Store (fatal on failure) ─────────────────────────────────────────
	st, err := store.Connect(runCtx, a.cfg.PostgresURL, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.store = st

	// ── Bus (degraded mode on failure) ───────────────────────────────────
	bus, err := busnats.Connect(busnats.Config{URL: a.cfg.NATSURL}, a.logger)
	if err != nil {
		a.logger.Error("app: bus unavailable — continuing without fan-out",
			"error", err.Error())
		bus = nil
	}
	a.bus = bus

	// ── Credential cipher ────────────────────────────────────────────────
	var cipher *crypto.CredentialCipher
	if a.cfg.CredentialSecret != "" {
		cipher, err = crypto.New(a.cfg.CredentialSecret)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
	} else {
		a.logger.Warn("app: no credential secret configured — SNMPv3 polling limited to credential-less devices")
	}

	// ── Poll path ────────────────────────────────────────────────────────
	coll := collector.New(collector.Config{
		SNMPTimeout: a.cfg.SNMPTimeout,
		SNMPRetries: a.cfg.SNMPRetries,
		WalkMaxRows: a.cfg.WalkMaxRows,
		PingCount:   a.cfg.PingCount,
		PingTimeout: a.cfg.PingTimeout,
	}, cipher, a.logger)

	tsdbClient := tsdb.New(tsdb.Config{BaseURL: a.cfg.TSDBURL}, a.logger)

	var busDep sink.Bus
	if bus != nil {
		busDep = bus
	}
	snk := sink.New(coll, st.Metrics, st.Devices, tsdbClient, busDep, a.logger)

	a.sched = scheduler.New(scheduler.Config{
		Interval:      a.cfg.PollInterval,
		BatchSize:     a.cfg.PollBatchSize,
		MaxConcurrent: a.cfg.MaxConcurrentPolls,
	}, st.Devices, snk, a.logger)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Start(runCtx)
	}()

	// ── Bus consumers (poll requests target the scheduler) ───────────────
	if bus != nil {
		bus.OnPollRequest(func(ctx context.Context, deviceID string) {
			a.sched.PollNow(ctx, deviceID)
		})
		if err := bus.StartConsumers(runCtx); err != nil {
			a.logger.Error("app: consumer start failed", "error", err.Error())
		}
	}

	// ── Syslog path (bind failure is fatal) ──────────────────────────────
	var eventBus ingest.EventPublisher
	if bus != nil {
		eventBus = bus
	}
	a.ingestor = ingest.New(ingest.Config{
		ListenAddr:          a.cfg.SyslogListenAddr,
		BatchSize:           a.cfg.SyslogBatchSize,
		FlushInterval:       a.cfg.SyslogFlushInterval,
		BufferCheckInterval: a.cfg.BufferCheckInterval,
	}, st.Syslog, eventBus, a.logger)
	if err := a.ingestor.Start(runCtx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	// ── STIG path ────────────────────────────────────────────────────────
	if a.cfg.STIGLibraryPath != "" {
		a.indexer = library.NewIndexer(a.cfg.STIGLibraryPath, a.logger)
		if err := a.indexer.Load(false); err != nil {
			a.logger.Error("app: stig library load failed — engine disabled",
				"error", err.Error())
			a.indexer = nil
		}
	}
	if a.indexer != nil {
		a.engine = audit.New(audit.Config{}, st.STIG, a.indexer, a.logger)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.engine.Run(runCtx)
		}()
	}

	// ── Self metrics ─────────────────────────────────────────────────────
	a.metricsSrv = &http.Server{Addr: a.cfg.MetricsListenAddr, Handler: obs.Handler()}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("app: metrics server", "error", err.Error())
		}
	}()

	a.logger.Info("app: running",
		"poll_interval", a.cfg.PollInterval.String(),
		"max_concurrent_polls", a.cfg.MaxConcurrentPolls,
		"syslog_addr", a.cfg.SyslogListenAddr,
		"stig_engine", a.engine != nil,
		"bus", bus != nil,
	)
	return nil
}

// Stop shuts everything down in dependency order: stop intake first, then
// wait for workers, then release the shared connections.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.ingestor != nil {
		a.ingestor.Stop() // flushes the remaining buffer
	}
	if a.sched != nil {
		a.sched.Stop() // waits for in-flight polls
	}
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		a.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	a.wg.Wait()

	if a.bus != nil {
		a.bus.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("app: shutdown complete")
}
