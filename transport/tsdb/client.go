// Package tsdb pushes metric samples to a VictoriaMetrics-compatible
// time-series store using the Prometheus line-protocol import endpoint
// (POST /api/v1/import/prometheus, Content-Type: text/plain).
//
// Pipeline position:
//
//	collector → store (relational) ┐
//	                               ├→ tsdb (this package)
//	collector → sink ──────────────┘
//
// Push failures are soft: the relational row is the durable record, the TSDB
// copy exists for dashboard queries, so errors are logged by the caller and
// the poll continues.
package tsdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gridwatch/netpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the Client behaviour.
type Config struct {
	// BaseURL is the TSDB base URL, e.g. "http://localhost:8428".
	BaseURL string

	// Timeout bounds one import request. Default 30 s.
	Timeout time.Duration

	// HTTPClient overrides the transport. Used in tests. nil = new client.
	HTTPClient *http.Client
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

// Client pushes line-protocol batches to the TSDB. Safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.withDefaults()
	return &Client{cfg: cfg, logger: logger}
}

// PushDeviceMetrics renders and imports the device-level gauges for one poll.
func (c *Client) PushDeviceMetrics(ctx context.Context, deviceName string, m *models.DeviceMetrics) error {
	ts := m.Timestamp.UnixMilli()
	labels := Labels{{"device_id", m.DeviceID}, {"device_name", deviceName}}

	var lines []string
	add := func(metric string, value float64) {
		lines = append(lines, RenderLine(metric, labels, value, ts))
	}

	if m.CPUUtilization != nil {
		add("npm_device_cpu_utilization", *m.CPUUtilization)
	}
	if m.MemoryUtilization != nil {
		add("npm_device_memory_utilization", *m.MemoryUtilization)
	}
	if m.DiskUtilization != nil {
		add("npm_device_disk_utilization", *m.DiskUtilization)
	}
	if m.UptimeSeconds != nil {
		add("npm_device_uptime_seconds", float64(*m.UptimeSeconds))
	}
	if m.ICMPLatencyMs != nil {
		add("npm_device_icmp_latency_ms", *m.ICMPLatencyMs)
	}
	add("npm_device_interfaces_total", float64(m.InterfaceCount))
	add("npm_device_interfaces_up", float64(m.InterfacesUp))
	add("npm_device_interfaces_down", float64(m.InterfacesDown))

	return c.Import(ctx, lines)
}

// PushInterfaceMetrics imports the per-interface counters for one poll.
func (c *Client) PushInterfaceMetrics(ctx context.Context, deviceID, deviceName string, samples []models.InterfaceSample, ts time.Time) error {
	if len(samples) == 0 {
		return nil
	}
	millis := ts.UnixMilli()

	var lines []string
	for i := range samples {
		s := &samples[i]
		labels := Labels{
			{"device_id", deviceID},
			{"device_name", deviceName},
			{"if_index", strconv.Itoa(s.IfIndex)},
			{"interface_name", s.Name},
		}
		lines = append(lines,
			RenderLine("npm_interface_in_octets", labels, float64(s.InOctets), millis),
			RenderLine("npm_interface_out_octets", labels, float64(s.OutOctets), millis),
			RenderLine("npm_interface_in_errors", labels, float64(s.InErrors), millis),
			RenderLine("npm_interface_out_errors", labels, float64(s.OutErrors), millis),
		)
	}
	return c.Import(ctx, lines)
}

// Import posts raw line-protocol lines to the import endpoint.
func (c *Client) Import(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	body := strings.Join(lines, "\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/v1/import/prometheus", bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("tsdb: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("tsdb: import: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tsdb: import: unexpected status %d", resp.StatusCode)
	}

	c.logger.Debug("tsdb: imported lines", "count", len(lines))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Line rendering
// ─────────────────────────────────────────────────────────────────────────────

// Labels is an ordered label set; order is preserved in the rendered line.
type Labels [][2]string

// RenderLine formats one Prometheus exposition line with a millisecond
// timestamp: name{k="v",...} value millis.
func RenderLine(name string, labels Labels, value float64, millis int64) string {
	var b strings.Builder
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteString("{")
		for i, kv := range labels {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(kv[0])
			b.WriteString(`="`)
			b.WriteString(escapeLabel(kv[1]))
			b.WriteString(`"`)
		}
		b.WriteString("}")
	}
	b.WriteString(" ")
	b.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	b.WriteString(" ")
	b.WriteString(strconv.FormatInt(millis, 10))
	return b.String()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}
