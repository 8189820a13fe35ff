package ingest_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/ingest"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockStore struct {
	mu       sync.Mutex
	inserted [][]models.SyslogEvent
	failNext int // fail this many InsertEvents calls

	settings  models.BufferSettings
	tableSize int64
	sizeAfter int64 // table size reported after a delete
	deleted   []struct{ days, limit int }
	sizeLog   []int64
	cleanups  int
}

func (m *mockStore) InsertEvents(_ context.Context, events []models.SyslogEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("db unavailable")
	}
	cp := append([]models.SyslogEvent(nil), events...)
	m.inserted = append(m.inserted, cp)
	return nil
}

func (m *mockStore) GetBufferSettings(context.Context) (*models.BufferSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings
	return &s, nil
}

func (m *mockStore) EventsTableSize(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deleted) > 0 {
		return m.sizeAfter, nil
	}
	return m.tableSize, nil
}

func (m *mockStore) UpdateCurrentSize(_ context.Context, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizeLog = append(m.sizeLog, size)
	return nil
}

func (m *mockStore) DeleteExpired(_ context.Context, days, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, struct{ days, limit int }{days, limit})
	return 100000, nil
}

func (m *mockStore) MarkCleanup(context.Context, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return nil
}

func (m *mockStore) insertedEvents() []models.SyslogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SyslogEvent
	for _, batch := range m.inserted {
		out = append(out, batch...)
	}
	return out
}

type mockBus struct {
	mu     sync.Mutex
	events []models.SyslogEvent
	fail   bool
}

func (b *mockBus) PublishSyslogEvent(ev *models.SyslogEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bus down")
	}
	b.events = append(b.events, *ev)
	return nil
}

func newIngestor(store *mockStore, bus ingest.EventPublisher) *ingest.Ingestor {
	return ingest.New(ingest.Config{
		ListenAddr:    "127.0.0.1:0",
		BatchSize:     5,
		FlushInterval: time.Hour, // flushes in tests are explicit
	}, store, bus, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// Parsing and enrichment
// ─────────────────────────────────────────────────────────────────────────────

func TestProcessParsesAndBuffers(t *testing.T) {
	store := &mockStore{}
	ing := newIngestor(store, nil)

	ing.Process("<189>Mar  1 09:00:00 rtr1 %LINK-3-UPDOWN: Interface GigabitEthernet0/1, changed state to down", "10.1.1.1")
	assert.Equal(t, 1, ing.Pending())

	ing.Flush(context.Background())
	events := store.insertedEvents()
	require.Len(t, events, 1)

	ev := events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "10.1.1.1", ev.SourceIP)
	assert.Equal(t, 23, ev.Facility)
	assert.Equal(t, 5, ev.Severity)
	assert.Equal(t, "cisco", ev.DeviceType)
	assert.Equal(t, "link_state", ev.EventType)
	require.NotNil(t, ev.Hostname)
	assert.Equal(t, "rtr1", *ev.Hostname)
}

func TestBatchSizeEventsHeldForFlush(t *testing.T) {
	store := &mockStore{}
	ing := newIngestor(store, nil)

	for i := 0; i < 5; i++ {
		ing.Process("<13>test message", "10.0.0.2")
	}
	// Signal-driven flush only runs inside Start's flush loop; at minimum
	// the buffer holds all events for the next explicit flush.
	assert.Equal(t, 5, ing.Pending())
	ing.Flush(context.Background())
	assert.Equal(t, 0, ing.Pending())
	assert.Len(t, store.insertedEvents(), 5)
}

// ─────────────────────────────────────────────────────────────────────────────
// Failure and backpressure
// ─────────────────────────────────────────────────────────────────────────────

func TestFlushFailureRequeuesWithoutLoss(t *testing.T) {
	store := &mockStore{failNext: 1}
	ing := newIngestor(store, nil)

	for i := 0; i < 3; i++ {
		ing.Process("<13>event", "10.0.0.3")
	}

	ing.Flush(context.Background()) // fails, re-queues
	assert.Equal(t, 3, ing.Pending())
	assert.Empty(t, store.insertedEvents())

	ing.Flush(context.Background()) // succeeds
	assert.Equal(t, 0, ing.Pending())

	events := store.insertedEvents()
	require.Len(t, events, 3, "after retry every event appears exactly once")

	seen := make(map[string]bool)
	for _, ev := range events {
		assert.False(t, seen[ev.ID], "event %s inserted twice", ev.ID)
		seen[ev.ID] = true
	}
}

func TestRequeuePreservesOrderAheadOfNewEvents(t *testing.T) {
	store := &mockStore{failNext: 1}
	ing := newIngestor(store, nil)

	ing.Process("<13>first", "10.0.0.4")
	ing.Flush(context.Background()) // fails; "first" re-queued
	ing.Process("<13>second", "10.0.0.4")

	ing.Flush(context.Background())
	events := store.insertedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Message)
	assert.Equal(t, "second", events[1].Message)
}

func TestBufferDropsAtTenTimesBatchSize(t *testing.T) {
	store := &mockStore{failNext: 1000000} // the store never accepts
	ing := newIngestor(store, nil)         // batch size 5 → cap 50

	for i := 0; i < 80; i++ {
		ing.Process("<13>flood", "10.0.0.5")
	}
	assert.Equal(t, 50, ing.Pending(), "buffer must cap at 10× batch size")
}

// ─────────────────────────────────────────────────────────────────────────────
// Fan-out
// ─────────────────────────────────────────────────────────────────────────────

func TestEventsPublishedToBus(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{}
	ing := newIngestor(store, bus)

	ing.Process("<13>hello", "10.0.0.6")

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.events, 1)
	assert.Equal(t, "hello", bus.events[0].Message)
}

func TestPublishFailureDoesNotDropEvent(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{fail: true}
	ing := newIngestor(store, bus)

	ing.Process("<13>still stored", "10.0.0.7")
	assert.Equal(t, 1, ing.Pending())

	ing.Flush(context.Background())
	assert.Len(t, store.insertedEvents(), 1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Circular buffer
// ─────────────────────────────────────────────────────────────────────────────

func TestCleanupBelowThresholdOnlyRecordsSize(t *testing.T) {
	store := &mockStore{
		settings: models.BufferSettings{
			MaxSizeBytes:            10 * 1024 * 1024 * 1024,
			CleanupThresholdPercent: 80,
			RetentionDays:           30,
		},
		tableSize: 1024, // far below threshold
	}
	ing := newIngestor(store, nil)

	require.NoError(t, ing.RunCleanup(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.deleted)
	assert.Equal(t, []int64{1024}, store.sizeLog)
	assert.Equal(t, 0, store.cleanups)
}

func TestCleanupAboveThresholdDeletesAndStamps(t *testing.T) {
	const gib = int64(1024 * 1024 * 1024)
	store := &mockStore{
		settings: models.BufferSettings{
			MaxSizeBytes:            10 * gib,
			CleanupThresholdPercent: 80,
			RetentionDays:           30,
		},
		tableSize: 11 * gib, // over quota
		sizeAfter: 9 * gib,  // after deletion
	}
	ing := newIngestor(store, nil)

	require.NoError(t, ing.RunCleanup(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.deleted, 1)
	assert.Equal(t, 30, store.deleted[0].days)
	assert.Equal(t, 100000, store.deleted[0].limit)
	assert.Equal(t, 1, store.cleanups)

	// Size recorded before and after the pass; the final figure is back
	// under the quota.
	require.Len(t, store.sizeLog, 2)
	assert.Equal(t, 11*gib, store.sizeLog[0])
	assert.LessOrEqual(t, store.sizeLog[1], store.settings.MaxSizeBytes)
}

// ─────────────────────────────────────────────────────────────────────────────
// UDP end to end
// ─────────────────────────────────────────────────────────────────────────────

func TestUDPReceiveEndToEnd(t *testing.T) {
	store := &mockStore{}
	ing := ingest.New(ingest.Config{
		ListenAddr:    "127.0.0.1:0",
		BatchSize:     100,
		FlushInterval: 10 * time.Millisecond,
	}, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ing.Start(ctx))
	defer ing.Stop()

	conn, err := net.Dial("udp", ing.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("<34>Oct 11 22:14:15 host su: 'su root' failed"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(store.insertedEvents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ev := store.insertedEvents()[0]
	assert.Equal(t, 4, ev.Facility)
	assert.Equal(t, 2, ev.Severity)
	assert.Equal(t, "127.0.0.1", ev.SourceIP)
}
