// Package sink persists and fans out the output of one device poll: the
// append-only metrics row, the interface upserts, the device status update,
// the TSDB line-protocol push, and the bus publishes.
//
// The relational write is the only hard dependency — TSDB and bus failures
// are logged and swallowed, since the next poll supersedes them.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/collector"
	busnats "github.com/gridwatch/netpulse/transport/nats"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// MetricsStore is the relational metrics surface the sink writes to.
type MetricsStore interface {
	InsertDeviceMetrics(ctx context.Context, m *models.DeviceMetrics) error
	UpsertInterface(ctx context.Context, deviceID string, s *models.InterfaceSample) (string, error)
	InsertInterfaceMetrics(ctx context.Context, interfaceID string, m *models.DeviceMetrics, s *models.InterfaceSample) error
}

// StatusStore updates the device row after a poll.
type StatusStore interface {
	UpdateStatus(ctx context.Context, deviceID string, res *models.PollResult, at time.Time) error
}

// TSDB pushes line-protocol samples. Optional: nil disables the push.
type TSDB interface {
	PushDeviceMetrics(ctx context.Context, deviceName string, m *models.DeviceMetrics) error
	PushInterfaceMetrics(ctx context.Context, deviceID, deviceName string, samples []models.InterfaceSample, ts time.Time) error
}

// Bus publishes samples and status transitions. Optional: nil disables it.
type Bus interface {
	PublishMetrics(sampleType string, payload any) error
	PublishDeviceStatus(change busnats.StatusChange) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Sink
// ─────────────────────────────────────────────────────────────────────────────

// Sink implements scheduler.Runner over a Collector and the output surfaces.
type Sink struct {
	collector *collector.Collector
	metrics   MetricsStore
	status    StatusStore
	tsdb      TSDB
	bus       Bus
	logger    *slog.Logger
}

// New constructs a Sink. tsdb and bus may be nil.
func New(c *collector.Collector, metrics MetricsStore, status StatusStore, tsdb TSDB, bus Bus, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{
		collector: c,
		metrics:   metrics,
		status:    status,
		tsdb:      tsdb,
		bus:       bus,
		logger:    logger,
	}
}

// PollDevice runs the collection and persists everything it produced. The
// returned error reflects the relational write only.
func (s *Sink) PollDevice(ctx context.Context, device *models.Device, cred *models.SNMPCredential) error {
	res := s.collector.Poll(ctx, device, cred)
	return s.Persist(ctx, device, res)
}

// Persist writes one PollResult.
func (s *Sink) Persist(ctx context.Context, device *models.Device, res *models.PollResult) error {
	if err := s.metrics.InsertDeviceMetrics(ctx, &res.Metrics); err != nil {
		return fmt.Errorf("sink: %w", err)
	}

	for i := range res.Interfaces {
		sample := &res.Interfaces[i]
		ifaceID, err := s.metrics.UpsertInterface(ctx, device.ID, sample)
		if err != nil {
			s.logger.Warn("sink: interface upsert failed",
				"device", device.Name, "if_index", sample.IfIndex, "error", err.Error())
			continue
		}
		if err := s.metrics.InsertInterfaceMetrics(ctx, ifaceID, &res.Metrics, sample); err != nil {
			s.logger.Warn("sink: interface metrics insert failed",
				"device", device.Name, "if_index", sample.IfIndex, "error", err.Error())
		}
	}

	now := time.Now().UTC()
	previous := device.Status
	if err := s.status.UpdateStatus(ctx, device.ID, res, now); err != nil {
		s.logger.Warn("sink: status update failed",
			"device", device.Name, "error", err.Error())
	}

	s.pushTSDB(ctx, device, res)
	s.publish(device, res, previous)
	return nil
}

func (s *Sink) pushTSDB(ctx context.Context, device *models.Device, res *models.PollResult) {
	if s.tsdb == nil {
		return
	}
	if err := s.tsdb.PushDeviceMetrics(ctx, device.Name, &res.Metrics); err != nil {
		s.logger.Warn("sink: tsdb device push failed",
			"device", device.Name, "error", err.Error())
	}
	if err := s.tsdb.PushInterfaceMetrics(ctx, device.ID, device.Name, res.Interfaces, res.Metrics.Timestamp); err != nil {
		s.logger.Warn("sink: tsdb interface push failed",
			"device", device.Name, "error", err.Error())
	}
}

func (s *Sink) publish(device *models.Device, res *models.PollResult, previous models.DeviceStatus) {
	if s.bus == nil {
		return
	}

	if err := s.bus.PublishMetrics("device", res.Metrics); err != nil {
		s.logger.Warn("sink: metrics publish failed",
			"device", device.Name, "error", err.Error())
	}

	current := res.OverallStatus()
	if current != previous {
		if err := s.bus.PublishDeviceStatus(busnats.StatusChange{
			DeviceID:       device.ID,
			Status:         string(current),
			PreviousStatus: string(previous),
			Timestamp:      res.Metrics.Timestamp.Format(time.RFC3339),
		}); err != nil {
			s.logger.Warn("sink: status publish failed",
				"device", device.Name, "error", err.Error())
		}
	}
}
