package sink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/sink"
	busnats "github.com/gridwatch/netpulse/transport/nats"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockMetrics struct {
	deviceRows   []models.DeviceMetrics
	upserts      []models.InterfaceSample
	ifaceRows    []string
	insertErr    error
	upsertErr    error
	ifaceInsErr  error
	nextIfaceSeq int
}

func (m *mockMetrics) InsertDeviceMetrics(_ context.Context, dm *models.DeviceMetrics) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.deviceRows = append(m.deviceRows, *dm)
	return nil
}

func (m *mockMetrics) UpsertInterface(_ context.Context, _ string, s *models.InterfaceSample) (string, error) {
	if m.upsertErr != nil {
		return "", m.upsertErr
	}
	m.upserts = append(m.upserts, *s)
	m.nextIfaceSeq++
	return "iface-" + string(rune('0'+m.nextIfaceSeq)), nil
}

func (m *mockMetrics) InsertInterfaceMetrics(_ context.Context, id string, _ *models.DeviceMetrics, _ *models.InterfaceSample) error {
	if m.ifaceInsErr != nil {
		return m.ifaceInsErr
	}
	m.ifaceRows = append(m.ifaceRows, id)
	return nil
}

type mockStatus struct {
	updates []models.PollResult
}

func (m *mockStatus) UpdateStatus(_ context.Context, _ string, res *models.PollResult, _ time.Time) error {
	m.updates = append(m.updates, *res)
	return nil
}

type mockBus struct {
	metrics  []string
	statuses []busnats.StatusChange
}

func (b *mockBus) PublishMetrics(sampleType string, _ any) error {
	b.metrics = append(b.metrics, sampleType)
	return nil
}

func (b *mockBus) PublishDeviceStatus(c busnats.StatusChange) error {
	b.statuses = append(b.statuses, c)
	return nil
}

func upResult(deviceID string) *models.PollResult {
	reachable := true
	return &models.PollResult{
		DeviceID: deviceID,
		Metrics: models.DeviceMetrics{
			DeviceID:      deviceID,
			Timestamp:     time.Now().UTC(),
			ICMPReachable: &reachable,
			IsAvailable:   true,
		},
		Interfaces: []models.InterfaceSample{
			{IfIndex: 1, Name: "ge-0/0/0", OperStatus: models.IfUp},
			{IfIndex: 2, Name: "ge-0/0/1", OperStatus: models.IfDown},
		},
		ICMPStatus: models.StatusUp,
		SNMPStatus: models.StatusUp,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestPersistWritesEverything(t *testing.T) {
	metrics := &mockMetrics{}
	status := &mockStatus{}
	bus := &mockBus{}
	s := sink.New(nil, metrics, status, nil, bus, nil)

	device := &models.Device{ID: "dev-1", Name: "rtr1", Status: models.StatusUp}
	require.NoError(t, s.Persist(context.Background(), device, upResult("dev-1")))

	assert.Len(t, metrics.deviceRows, 1)
	assert.Len(t, metrics.upserts, 2)
	assert.Len(t, metrics.ifaceRows, 2)
	assert.Len(t, status.updates, 1)
	assert.Equal(t, []string{"device"}, bus.metrics)
	assert.Empty(t, bus.statuses, "no status change, no status publish")
}

func TestPersistPublishesStatusTransition(t *testing.T) {
	metrics := &mockMetrics{}
	status := &mockStatus{}
	bus := &mockBus{}
	s := sink.New(nil, metrics, status, nil, bus, nil)

	// Device was down; the poll says up.
	device := &models.Device{ID: "dev-1", Name: "rtr1", Status: models.StatusDown}
	require.NoError(t, s.Persist(context.Background(), device, upResult("dev-1")))

	require.Len(t, bus.statuses, 1)
	assert.Equal(t, "dev-1", bus.statuses[0].DeviceID)
	assert.Equal(t, "up", bus.statuses[0].Status)
	assert.Equal(t, "down", bus.statuses[0].PreviousStatus)
}

func TestPersistReturnsErrorOnlyForDeviceRow(t *testing.T) {
	metrics := &mockMetrics{insertErr: errors.New("db down")}
	s := sink.New(nil, metrics, &mockStatus{}, nil, nil, nil)

	err := s.Persist(context.Background(), &models.Device{ID: "dev-1"}, upResult("dev-1"))
	assert.Error(t, err)
}

func TestPersistToleratesInterfaceFailures(t *testing.T) {
	metrics := &mockMetrics{upsertErr: errors.New("constraint violation")}
	status := &mockStatus{}
	s := sink.New(nil, metrics, status, nil, nil, nil)

	err := s.Persist(context.Background(), &models.Device{ID: "dev-1"}, upResult("dev-1"))
	require.NoError(t, err, "interface failures are soft")
	assert.Len(t, status.updates, 1, "status update still happens")
}
