// Package obs holds the Prometheus self-observability instruments for the
// NetPulse process and the HTTP handler that exposes them.
//
// These measure the collector itself, not the monitored devices — device
// telemetry goes to the TSDB via transport/tsdb.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollsTotal counts device polls by outcome ("ok" | "error").
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netpulse_polls_total",
		Help: "Device polls executed, by outcome.",
	}, []string{"outcome"})

	// PollDuration observes the wall time of one device poll.
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netpulse_poll_duration_seconds",
		Help:    "Wall time of one device poll.",
		Buckets: prometheus.DefBuckets,
	})

	// PollsInFlight tracks concurrently running polls.
	PollsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netpulse_polls_in_flight",
		Help: "Polls currently running.",
	})

	// SyslogReceived counts datagrams accepted from the UDP socket.
	SyslogReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netpulse_syslog_received_total",
		Help: "Syslog datagrams received.",
	})

	// SyslogDropped counts events dropped at the buffer edge under
	// backpressure. This counter is part of the external contract.
	SyslogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netpulse_syslog_dropped_total",
		Help: "Syslog events dropped because the in-memory buffer was full.",
	})

	// SyslogFlushed counts events durably written, by outcome.
	SyslogFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netpulse_syslog_flushed_total",
		Help: "Syslog events flushed to the store, by outcome.",
	}, []string{"outcome"})

	// STIGEvaluations counts rule evaluations by resulting status.
	STIGEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netpulse_stig_evaluations_total",
		Help: "STIG rule evaluations, by status.",
	}, []string{"status"})
)

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
