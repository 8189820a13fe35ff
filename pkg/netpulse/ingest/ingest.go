// Package ingest implements the syslog ingestion pipeline: a UDP listener on
// port 514, frame parsing and classification, batched durable writes, the
// circular-buffer eviction pass, and real-time fan-out on the bus.
//
// Pipeline position:
//
//	UDP :514 → [Ingestor] → in-memory buffer → syslog.events (batched)
//	                      ↘ bus (syslog.events / syslog.alerts.<sev>)
//
// The UDP path is best-effort: when the in-memory buffer reaches ten times
// the batch size, new events are dropped at the edge and counted. The mutex
// guards only buffer swaps — never network or database I/O.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/obs"
	"github.com/gridwatch/netpulse/syslog/parser"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// EventStore is the relational surface the ingestor writes to.
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.SyslogEvent) error
	GetBufferSettings(ctx context.Context) (*models.BufferSettings, error)
	EventsTableSize(ctx context.Context) (int64, error)
	UpdateCurrentSize(ctx context.Context, size int64) error
	DeleteExpired(ctx context.Context, retentionDays, oldestLimit int) (int64, error)
	MarkCleanup(ctx context.Context, at time.Time) error
}

// EventPublisher fans events out on the bus. Optional: nil disables fan-out.
type EventPublisher interface {
	PublishSyslogEvent(ev *models.SyslogEvent) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the Ingestor.
type Config struct {
	// ListenAddr is the UDP bind address. Default "0.0.0.0:514".
	ListenAddr string
	// BatchSize triggers a flush when the buffer reaches it. Default 100.
	BatchSize int
	// FlushInterval flushes a partial buffer. Default 5 s.
	FlushInterval time.Duration
	// BufferCheckInterval runs the circular-buffer pass. Default 5 m.
	BufferCheckInterval time.Duration
	// OldestDeleteLimit bounds the oldest-rows delete in one cleanup pass.
	// Default 100000.
	OldestDeleteLimit int
	// ReadBufferSize is the per-datagram read buffer. Default 64 KiB.
	ReadBufferSize int
}

func (c *Config) withDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:514"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.BufferCheckInterval <= 0 {
		c.BufferCheckInterval = 5 * time.Minute
	}
	if c.OldestDeleteLimit <= 0 {
		c.OldestDeleteLimit = 100_000
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 * 1024
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Ingestor
// ─────────────────────────────────────────────────────────────────────────────

// Ingestor owns the UDP socket, the in-memory event buffer, and the periodic
// flush and cleanup loops.
type Ingestor struct {
	cfg    Config
	store  EventStore
	bus    EventPublisher
	logger *slog.Logger

	conn net.PacketConn

	mu      sync.Mutex
	pending []models.SyslogEvent
	flushCh chan struct{}

	wg   sync.WaitGroup
	stop sync.Once
	done chan struct{}
}

// New constructs an Ingestor.
func New(cfg Config, store EventStore, bus EventPublisher, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.withDefaults()
	return &Ingestor{
		cfg:     cfg,
		store:   store,
		bus:     bus,
		logger:  logger,
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start binds the socket and launches the receive, flush, and cleanup loops.
// A bind failure is returned to the caller and is fatal by design: a syslog
// collector that cannot listen has no reason to run.
func (i *Ingestor) Start(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", i.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("ingest: bind %s: %w", i.cfg.ListenAddr, err)
	}
	i.conn = conn
	i.logger.Info("ingest: listening", "addr", i.cfg.ListenAddr)

	i.wg.Add(3)
	go i.readLoop()
	go i.flushLoop(ctx)
	go i.cleanupLoop(ctx)

	go func() {
		select {
		case <-ctx.Done():
			i.Stop()
		case <-i.done:
		}
	}()
	return nil
}

// Addr returns the bound UDP address, useful when the configured port was 0.
func (i *Ingestor) Addr() string {
	if i.conn == nil {
		return i.cfg.ListenAddr
	}
	return i.conn.LocalAddr().String()
}

// Stop closes the socket, waits for the loops, and flushes whatever is still
// buffered. Safe to call more than once.
func (i *Ingestor) Stop() {
	i.stop.Do(func() {
		close(i.done)
		if i.conn != nil {
			i.conn.Close()
		}
		i.wg.Wait()

		// Final flush with a fresh context: the run context is already gone.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		i.Flush(ctx)

		i.logger.Info("ingest: stopped")
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Receive path
// ─────────────────────────────────────────────────────────────────────────────

func (i *Ingestor) readLoop() {
	defer i.wg.Done()

	buf := make([]byte, i.cfg.ReadBufferSize)
	for {
		n, addr, err := i.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-i.done:
				return
			default:
			}
			i.logger.Warn("ingest: read error", "error", err.Error())
			continue
		}
		if n == 0 {
			continue
		}
		obs.SyslogReceived.Inc()

		raw := strings.TrimRight(strings.ToValidUTF8(string(buf[:n]), "�"), " \t\r\n\x00")
		if raw == "" {
			continue
		}

		ip := addr.String()
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		i.Process(raw, ip)
	}
}

// Process parses one frame, enqueues it for the durable batch, and fans it
// out on the bus. Exported for tests and for TCP front-ends.
func (i *Ingestor) Process(raw, sourceIP string) {
	msg := parser.Parse(raw)

	ev := models.SyslogEvent{
		ID:             uuid.NewString(),
		SourceIP:       sourceIP,
		ReceivedAt:     time.Now().UTC(),
		Facility:       msg.Facility,
		Severity:       msg.Severity,
		Version:        msg.Version,
		Timestamp:      msg.Timestamp,
		Hostname:       msg.Hostname,
		AppName:        msg.AppName,
		ProcID:         msg.ProcID,
		MsgID:          msg.MsgID,
		StructuredData: msg.StructuredData,
		Message:        msg.Message,
		DeviceType:     msg.DeviceType,
		EventType:      msg.EventType,
		RawMessage:     msg.RawMessage,
	}

	i.enqueue(ev)

	if i.bus != nil {
		if err := i.bus.PublishSyslogEvent(&ev); err != nil {
			// Publish failures never drop the event — it is already queued
			// for the durable write.
			i.logger.Warn("ingest: publish failed", "error", err.Error())
		}
	}
}

// enqueue appends to the pending buffer, dropping at the edge when the
// bounded capacity (10× batch size) is exhausted.
func (i *Ingestor) enqueue(ev models.SyslogEvent) {
	trigger := false

	i.mu.Lock()
	if len(i.pending) >= i.cfg.BatchSize*10 {
		i.mu.Unlock()
		obs.SyslogDropped.Inc()
		i.logger.Warn("ingest: buffer full, event dropped", "source_ip", ev.SourceIP)
		return
	}
	i.pending = append(i.pending, ev)
	if len(i.pending) >= i.cfg.BatchSize {
		trigger = true
	}
	i.mu.Unlock()

	if trigger {
		select {
		case i.flushCh <- struct{}{}:
		default:
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Flush path
// ─────────────────────────────────────────────────────────────────────────────

func (i *Ingestor) flushLoop(ctx context.Context) {
	defer i.wg.Done()

	ticker := time.NewTicker(i.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.done:
			return
		case <-ticker.C:
			i.Flush(ctx)
		case <-i.flushCh:
			i.Flush(ctx)
		}
	}
}

// Flush swaps the buffer out under the lock and writes it outside the lock.
// On failure the events are re-queued at the front, capped at ten batches so
// a dead database cannot grow the process without bound.
func (i *Ingestor) Flush(ctx context.Context) {
	i.mu.Lock()
	if len(i.pending) == 0 {
		i.mu.Unlock()
		return
	}
	events := i.pending
	i.pending = nil
	i.mu.Unlock()

	if err := i.store.InsertEvents(ctx, events); err != nil {
		obs.SyslogFlushed.WithLabelValues("error").Add(float64(len(events)))
		i.logger.Error("ingest: flush failed, re-queueing",
			"events", len(events), "error", err.Error())

		i.mu.Lock()
		combined := append(events, i.pending...)
		if max := i.cfg.BatchSize * 10; len(combined) > max {
			obs.SyslogDropped.Add(float64(len(combined) - max))
			combined = combined[:max]
		}
		i.pending = combined
		i.mu.Unlock()
		return
	}

	obs.SyslogFlushed.WithLabelValues("ok").Add(float64(len(events)))
	i.logger.Debug("ingest: flushed", "events", len(events))
}

// Pending reports the buffered event count (for tests and monitoring).
func (i *Ingestor) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

// ─────────────────────────────────────────────────────────────────────────────
// Circular buffer
// ─────────────────────────────────────────────────────────────────────────────

func (i *Ingestor) cleanupLoop(ctx context.Context) {
	defer i.wg.Done()

	ticker := time.NewTicker(i.cfg.BufferCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.done:
			return
		case <-ticker.C:
			if err := i.RunCleanup(ctx); err != nil {
				i.logger.Error("ingest: buffer cleanup failed", "error", err.Error())
			}
		}
	}
}

// RunCleanup measures the events table, records the size, and — when the
// size exceeds max_size_bytes × threshold% — deletes the union of rows older
// than the retention window and the oldest rows up to the per-pass limit.
func (i *Ingestor) RunCleanup(ctx context.Context) error {
	settings, err := i.store.GetBufferSettings(ctx)
	if err != nil {
		return err
	}

	size, err := i.store.EventsTableSize(ctx)
	if err != nil {
		return err
	}
	if err := i.store.UpdateCurrentSize(ctx, size); err != nil {
		return err
	}

	threshold := settings.MaxSizeBytes * int64(settings.CleanupThresholdPercent) / 100
	if size <= threshold {
		return nil
	}

	i.logger.Warn("ingest: buffer threshold exceeded, cleaning up",
		"current_bytes", size,
		"threshold_bytes", threshold,
	)

	deleted, err := i.store.DeleteExpired(ctx, settings.RetentionDays, i.cfg.OldestDeleteLimit)
	if err != nil {
		return err
	}
	if err := i.store.MarkCleanup(ctx, time.Now().UTC()); err != nil {
		return err
	}

	// Re-measure so current_size_bytes reflects the pass.
	if size, err = i.store.EventsTableSize(ctx); err == nil {
		if err := i.store.UpdateCurrentSize(ctx, size); err != nil {
			i.logger.Warn("ingest: size update failed", "error", err.Error())
		}
	}

	i.logger.Info("ingest: buffer cleanup completed", "deleted", deleted)
	return nil
}
