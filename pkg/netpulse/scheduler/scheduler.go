// Package scheduler drives the polling cadence: every interval it claims a
// batch of due devices from the store and fans them out to the collector
// under a global concurrency cap.
//
// Per-device exclusion has two layers. The batch claim stamps last_poll
// inside a SKIP LOCKED transaction, so a device appears in at most one batch
// per cycle even with multiple scheduler instances. Within this process an
// in-flight set additionally guards against overlap between scheduled polls
// and on-demand polls requested over the bus.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/obs"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// DeviceSource is the subset of the device repository the scheduler needs.
type DeviceSource interface {
	ClaimBatch(ctx context.Context, limit int) ([]models.Device, error)
	Get(ctx context.Context, id string) (*models.Device, error)
	GetCredential(ctx context.Context, id string) (*models.SNMPCredential, error)
}

// Runner executes one device poll end to end (collect + persist + publish).
type Runner interface {
	PollDevice(ctx context.Context, device *models.Device, cred *models.SNMPCredential) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the Scheduler.
type Config struct {
	// Interval is the cycle cadence. Default 60 s.
	Interval time.Duration
	// BatchSize is the max devices claimed per cycle. Default 100.
	BatchSize int
	// MaxConcurrent caps in-flight polls across all cycles. Default 20.
	MaxConcurrent int
}

func (c *Config) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 20
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Scheduler owns the polling loop. Create with New, run with Start (blocks
// until ctx cancels), wait for in-flight work with Stop.
type Scheduler struct {
	cfg     Config
	devices DeviceSource
	runner  Runner
	logger  *slog.Logger

	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}

	wg   sync.WaitGroup
	done chan struct{}
}

// New constructs a Scheduler.
func New(cfg Config, devices DeviceSource, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.withDefaults()
	return &Scheduler{
		cfg:      cfg,
		devices:  devices,
		runner:   runner,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		inflight: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs cycles until ctx is cancelled. The first cycle fires
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop waits for the scheduling loop to exit and all in-flight polls to
// settle. The caller must cancel the context passed to Start first; running
// polls finish within their own I/O timeout budget.
func (s *Scheduler) Stop() {
	<-s.done
	s.wg.Wait()
}

// WaitIdle blocks until every launched poll goroutine has settled. Unlike
// Stop it does not require Start to have been called.
func (s *Scheduler) WaitIdle() {
	s.wg.Wait()
}

// RunCycle claims one batch and launches the polls. It returns once every
// poll of the batch has been dispatched (not completed); per-device failures
// are collected in logs without failing the batch.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	batch, err := s.devices.ClaimBatch(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("scheduler: batch claim failed", "error", err.Error())
		return
	}
	if len(batch) == 0 {
		return
	}
	s.logger.Debug("scheduler: cycle start", "devices", len(batch))

	for i := range batch {
		device := batch[i]
		if !s.markInflight(device.ID) {
			// An on-demand poll for this device is still running.
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.clearInflight(device.ID)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			defer s.clearInflight(device.ID)
			s.pollOne(ctx, &device)
		}()
	}
}

// PollNow runs an out-of-cadence poll for one device, as requested over the
// bus. It is a no-op when the device is unknown, inactive, or already being
// polled.
func (s *Scheduler) PollNow(ctx context.Context, deviceID string) {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		s.logger.Warn("scheduler: poll request lookup failed",
			"device_id", deviceID, "error", err.Error())
		return
	}
	if device == nil || !device.IsActive {
		return
	}
	if !s.markInflight(device.ID) {
		return
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.clearInflight(device.ID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		defer s.clearInflight(device.ID)
		s.pollOne(ctx, device)
	}()
}

// pollOne resolves the credential and runs one poll. All failures are
// recovered here; the scheduler never dies because one device misbehaved.
func (s *Scheduler) pollOne(ctx context.Context, device *models.Device) {
	started := time.Now()
	obs.PollsInFlight.Inc()
	defer obs.PollsInFlight.Dec()
	defer func() { obs.PollDuration.Observe(time.Since(started).Seconds()) }()

	var cred *models.SNMPCredential
	if device.PollSNMP && device.CredentialID != "" {
		var err error
		cred, err = s.devices.GetCredential(ctx, device.CredentialID)
		if err != nil {
			s.logger.Warn("scheduler: credential lookup failed",
				"device", device.Name, "error", err.Error())
		}
	}

	if err := s.runner.PollDevice(ctx, device, cred); err != nil {
		obs.PollsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("scheduler: poll failed",
			"device", device.Name,
			"ip", device.IPAddress,
			"error", err.Error(),
		)
		return
	}
	obs.PollsTotal.WithLabelValues("ok").Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// In-flight tracking
// ─────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) markInflight(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[deviceID]; busy {
		return false
	}
	s.inflight[deviceID] = struct{}{}
	return true
}

func (s *Scheduler) clearInflight(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, deviceID)
}

// Inflight reports the number of currently running polls (for tests and
// monitoring).
func (s *Scheduler) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
