package tsdb_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/transport/tsdb"
)

func TestRenderLine(t *testing.T) {
	line := tsdb.RenderLine("npm_device_cpu_utilization",
		tsdb.Labels{{"device_id", "d1"}, {"device_name", "rtr1"}}, 42, 1700000000000)

	assert.Equal(t,
		`npm_device_cpu_utilization{device_id="d1",device_name="rtr1"} 42 1700000000000`,
		line)
}

func TestRenderLineEscapesLabels(t *testing.T) {
	line := tsdb.RenderLine("m", tsdb.Labels{{"name", `with"quote\and`}}, 1, 0)
	assert.Equal(t, `m{name="with\"quote\\and"} 1 0`, line)
}

func TestPushDeviceMetrics(t *testing.T) {
	var gotPath, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := tsdb.New(tsdb.Config{BaseURL: srv.URL}, nil)

	cpu := 42.0
	uptime := int64(3600)
	m := &models.DeviceMetrics{
		DeviceID:       "dev-1",
		Timestamp:      time.UnixMilli(1700000000000).UTC(),
		CPUUtilization: &cpu,
		UptimeSeconds:  &uptime,
		InterfaceCount: 2,
		InterfacesUp:   1,
		InterfacesDown: 1,
	}
	require.NoError(t, c.PushDeviceMetrics(context.Background(), "rtr1", m))

	assert.Equal(t, "/api/v1/import/prometheus", gotPath)
	assert.Equal(t, "text/plain", gotContentType)

	lines := strings.Split(gotBody, "\n")
	assert.Contains(t, lines, `npm_device_cpu_utilization{device_id="dev-1",device_name="rtr1"} 42 1700000000000`)
	assert.Contains(t, lines, `npm_device_uptime_seconds{device_id="dev-1",device_name="rtr1"} 3600 1700000000000`)
	assert.Contains(t, lines, `npm_device_interfaces_up{device_id="dev-1",device_name="rtr1"} 1 1700000000000`)

	// Unset optional gauges are omitted, not rendered as zero.
	assert.NotContains(t, gotBody, "npm_device_memory_utilization")
}

func TestPushInterfaceMetrics(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	c := tsdb.New(tsdb.Config{BaseURL: srv.URL}, nil)
	samples := []models.InterfaceSample{
		{IfIndex: 1, Name: "ge-0/0/0", InOctets: 1000, OutOctets: 2000},
	}
	require.NoError(t, c.PushInterfaceMetrics(context.Background(), "dev-1", "rtr1",
		samples, time.UnixMilli(1700000000000)))

	assert.Contains(t, gotBody,
		`npm_interface_in_octets{device_id="dev-1",device_name="rtr1",if_index="1",interface_name="ge-0/0/0"} 1000 1700000000000`)
}

func TestImportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := tsdb.New(tsdb.Config{BaseURL: srv.URL}, nil)
	err := c.Import(context.Background(), []string{"m 1 0"})
	assert.Error(t, err)
}

func TestImportEmptyIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := tsdb.New(tsdb.Config{BaseURL: srv.URL}, nil)
	require.NoError(t, c.Import(context.Background(), nil))
	assert.False(t, called)
}
