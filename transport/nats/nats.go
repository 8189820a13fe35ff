// Package nats implements the message-bus side of NetPulse on NATS with
// JetStream.
//
// Two delivery classes are in play:
//
//   - JetStream (durable): metric samples and status updates on the
//     NPM_METRICS stream, plus the control-plane poll requests consumed by
//     the durable pull consumers.
//   - Plain NATS (immediate): syslog fan-out and shared alerts, where a
//     subscriber that is not listening right now has no use for the message
//     later.
//
// Publish failures never drop the underlying event — the relational store is
// the durable record; failures here are logged by the caller.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gridwatch/netpulse/models"
)

// Subjects and stream names shared with the other GridWatch services.
const (
	SubjectSyslogEvents = "syslog.events"
	SubjectSyslogAlerts = "syslog.alerts." // + severity digit

	SubjectMetricsPrefix   = "npm.metrics." // + sample type
	SubjectDeviceStatus    = "npm.devices.status"
	SubjectInterfaceStatus = "npm.interfaces.status"
	SubjectPollRequest     = "npm.poll.request"
	SubjectSharedAlerts    = "shared.alerts.npm"

	StreamName = "NPM_METRICS"

	ConsumerPollWorker    = "npm-poll-worker"
	ConsumerStatusHandler = "npm-status-handler"
)

// AlertSeverityThreshold is the highest (numerically) syslog severity that
// still fans out on the alert subjects: emergency(0) … error(3).
const AlertSeverityThreshold = 3

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the Handler.
type Config struct {
	// URL is the NATS server URL, e.g. "nats://localhost:4222".
	URL string

	// Name identifies this connection on the server. Default "netpulse".
	Name string

	// FetchBatch is the pull-consumer fetch size. Default 10.
	FetchBatch int

	// FetchWait bounds one consumer fetch. Default 5 s.
	FetchWait time.Duration
}

func (c *Config) withDefaults() {
	if c.Name == "" {
		c.Name = "netpulse"
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = 10
	}
	if c.FetchWait <= 0 {
		c.FetchWait = 5 * time.Second
	}
}

// PollRequestHandler is invoked for each npm.poll.request message with the
// requested device ID.
type PollRequestHandler func(ctx context.Context, deviceID string)

// StatusChange is the payload of an npm.devices.status message.
type StatusChange struct {
	DeviceID       string `json:"device_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Handler
// ─────────────────────────────────────────────────────────────────────────────

// Handler owns the NATS connection, the JetStream stream, and the durable
// consumers. Create with Connect; release with Close.
type Handler struct {
	cfg    Config
	logger *slog.Logger

	nc *nats.Conn
	js nats.JetStreamContext

	onPollRequest PollRequestHandler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Connect dials the server and ensures the NPM_METRICS stream exists with the
// contractual limits.
func Connect(cfg Config, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.URL, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream: %w", err)
	}

	h := &Handler{cfg: cfg, logger: logger, nc: nc, js: js}
	if err := h.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("nats: connected", "url", cfg.URL)
	return h, nil
}

// ensureStream creates the NPM_METRICS stream when it does not exist yet.
func (h *Handler) ensureStream() error {
	if _, err := h.js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := h.js.AddStream(&nats.StreamConfig{
		Name: StreamName,
		Subjects: []string{
			"npm.metrics.*",
			"npm.devices.*",
			"npm.interfaces.*",
			"npm.poll.*",
		},
		Retention: nats.LimitsPolicy,
		MaxMsgs:   1_000_000,
		MaxBytes:  2 * 1024 * 1024 * 1024,
		MaxAge:    time.Hour,
	})
	if err != nil {
		return fmt.Errorf("nats: add stream %s: %w", StreamName, err)
	}
	h.logger.Info("nats: created stream", "stream", StreamName)
	return nil
}

// OnPollRequest registers the poll-request callback. Must be called before
// StartConsumers.
func (h *Handler) OnPollRequest(fn PollRequestHandler) {
	h.onPollRequest = fn
}

// Close stops consumers and drains the connection.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.running = false
	h.mu.Unlock()

	h.wg.Wait()

	if h.nc != nil {
		if err := h.nc.Drain(); err != nil {
			h.logger.Warn("nats: drain", "error", err.Error())
		}
	}
	h.logger.Info("nats: closed")
}

// ─────────────────────────────────────────────────────────────────────────────
// Publishing
// ─────────────────────────────────────────────────────────────────────────────

// PublishSyslogEvent fans an event out on syslog.events, and additionally on
// syslog.alerts.<severity> when the severity is error or worse.
func (h *Handler) PublishSyslogEvent(ev *models.SyslogEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}
	if err := h.nc.Publish(SubjectSyslogEvents, data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", SubjectSyslogEvents, err)
	}
	if ev.Severity <= AlertSeverityThreshold {
		subj := SubjectSyslogAlerts + strconv.Itoa(ev.Severity)
		if err := h.nc.Publish(subj, data); err != nil {
			return fmt.Errorf("nats: publish %s: %w", subj, err)
		}
	}
	return nil
}

// PublishMetrics publishes a metric sample to the durable stream under
// npm.metrics.<sampleType>.
func (h *Handler) PublishMetrics(sampleType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("nats: marshal metrics: %w", err)
	}
	if _, err := h.js.Publish(SubjectMetricsPrefix+sampleType, data); err != nil {
		return fmt.Errorf("nats: publish metrics: %w", err)
	}
	return nil
}

// PublishDeviceStatus publishes a device status transition to the stream.
func (h *Handler) PublishDeviceStatus(change StatusChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("nats: marshal status: %w", err)
	}
	if _, err := h.js.Publish(SubjectDeviceStatus, data); err != nil {
		return fmt.Errorf("nats: publish device status: %w", err)
	}
	return nil
}

// PublishAlert publishes to the shared alert subject. This is plain NATS, not
// JetStream — alerts are for whoever is listening right now.
func (h *Handler) PublishAlert(payload map[string]any) error {
	payload["source"] = "npm"
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("nats: marshal alert: %w", err)
	}
	if err := h.nc.Publish(SubjectSharedAlerts, data); err != nil {
		return fmt.Errorf("nats: publish alert: %w", err)
	}
	return nil
}

// RequestPoll publishes an immediate-poll request for one device.
func (h *Handler) RequestPoll(deviceID string) error {
	data, err := json.Marshal(map[string]string{"device_id": deviceID})
	if err != nil {
		return fmt.Errorf("nats: marshal poll request: %w", err)
	}
	if _, err := h.js.Publish(SubjectPollRequest, data); err != nil {
		return fmt.Errorf("nats: publish poll request: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Consumers
// ─────────────────────────────────────────────────────────────────────────────

// StartConsumers launches the durable pull consumers. They run until ctx is
// cancelled or Close is called.
func (h *Handler) StartConsumers(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("nats: consumers already running")
	}

	consCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true

	subOpts := []nats.SubOpt{
		nats.DeliverAll(),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(60 * time.Second),
	}

	pollSub, err := h.js.PullSubscribe(SubjectPollRequest, ConsumerPollWorker, subOpts...)
	if err != nil {
		cancel()
		h.running = false
		return fmt.Errorf("nats: subscribe %s: %w", SubjectPollRequest, err)
	}
	statusSub, err := h.js.PullSubscribe(SubjectDeviceStatus, ConsumerStatusHandler, subOpts...)
	if err != nil {
		cancel()
		h.running = false
		return fmt.Errorf("nats: subscribe %s: %w", SubjectDeviceStatus, err)
	}

	h.wg.Add(2)
	go h.consumeLoop(consCtx, pollSub, h.handlePollRequest)
	go h.consumeLoop(consCtx, statusSub, h.handleDeviceStatus)

	h.logger.Info("nats: consumers started",
		"consumers", []string{ConsumerPollWorker, ConsumerStatusHandler},
	)
	return nil
}

// consumeLoop fetches batches from one pull subscription until cancelled.
// Handler panics do not occur by contract; handler errors nak the message so
// the server redelivers up to MaxDeliver times.
func (h *Handler) consumeLoop(ctx context.Context, sub *nats.Subscription, handle func(ctx context.Context, msg *nats.Msg) error) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(h.cfg.FetchBatch, nats.MaxWait(h.cfg.FetchWait))
		if err != nil {
			if err == nats.ErrTimeout || ctx.Err() != nil {
				continue
			}
			h.logger.Error("nats: fetch", "subject", sub.Subject, "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			if err := handle(ctx, msg); err != nil {
				h.logger.Error("nats: message handling failed",
					"subject", msg.Subject,
					"error", err.Error(),
				)
				if nakErr := msg.Nak(); nakErr != nil {
					h.logger.Warn("nats: nak", "error", nakErr.Error())
				}
				continue
			}
			if err := msg.Ack(); err != nil {
				h.logger.Warn("nats: ack", "error", err.Error())
			}
		}
	}
}

func (h *Handler) handlePollRequest(ctx context.Context, msg *nats.Msg) error {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return fmt.Errorf("decode poll request: %w", err)
	}
	if req.DeviceID == "" {
		return fmt.Errorf("poll request without device_id")
	}
	if h.onPollRequest != nil {
		h.onPollRequest(ctx, req.DeviceID)
	}
	return nil
}

// handleDeviceStatus raises a shared alert when a device transitions from up
// to down.
func (h *Handler) handleDeviceStatus(_ context.Context, msg *nats.Msg) error {
	var change StatusChange
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		return fmt.Errorf("decode status change: %w", err)
	}
	if change.DeviceID == "" || change.Status == "" {
		return nil
	}

	if change.PreviousStatus == string(models.StatusUp) && change.Status == string(models.StatusDown) {
		if err := h.PublishAlert(map[string]any{
			"device_id": change.DeviceID,
			"message":   "Device is no longer responding",
			"severity":  "critical",
			"details": map[string]string{
				"previous_status": change.PreviousStatus,
				"current_status":  change.Status,
			},
		}); err != nil {
			h.logger.Warn("nats: alert publish failed",
				"device_id", change.DeviceID,
				"error", err.Error(),
			)
		}
	}
	return nil
}
