package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridwatch/netpulse/models"
)

// SyslogRepo writes syslog.events and syslog.sources and manages the
// circular-buffer bookkeeping in syslog.buffer_settings.
type SyslogRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// ─────────────────────────────────────────────────────────────────────────────
// Sources
// ─────────────────────────────────────────────────────────────────────────────

// UpsertSource finds or auto-creates the source row for an IP and returns its
// ID. New sources are named after the parsed hostname, falling back to the IP.
func (r *SyslogRepo) UpsertSource(ctx context.Context, ip, hostname, deviceType string) (string, error) {
	name := hostname
	if name == "" {
		name = ip
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO syslog.sources (name, ip_address, hostname, device_type)
		VALUES ($1, $2::inet, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (ip_address) DO UPDATE SET updated_at = NOW()
		RETURNING id`,
		name, ip, hostname, deviceType,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store: upsert source %s: %w", ip, err)
	}
	return id, nil
}

// BumpSource adds to the events_received counter and stamps last_event_at.
func (r *SyslogRepo) BumpSource(ctx context.Context, sourceID string, count int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE syslog.sources
		SET events_received = events_received + $2, last_event_at = NOW()
		WHERE id = $1`, sourceID, count)
	if err != nil {
		return fmt.Errorf("store: bump source %s: %w", sourceID, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// InsertEvents batch-inserts events, resolving source IDs first. Events from
// one flush share one pgx batch round-trip; FIFO order within the batch is
// preserved.
func (r *SyslogRepo) InsertEvents(ctx context.Context, events []models.SyslogEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Resolve / auto-create every distinct source IP up front.
	sourceIDs := make(map[string]string)
	counts := make(map[string]int)
	for i := range events {
		e := &events[i]
		counts[e.SourceIP]++
		if _, ok := sourceIDs[e.SourceIP]; ok {
			continue
		}
		id, err := r.UpsertSource(ctx, e.SourceIP, strOrEmpty(e.Hostname), e.DeviceType)
		if err != nil {
			return err
		}
		sourceIDs[e.SourceIP] = id
	}

	batch := &pgx.Batch{}
	for i := range events {
		e := &events[i]

		var sd []byte
		if len(e.StructuredData) > 0 {
			var err error
			sd, err = json.Marshal(e.StructuredData)
			if err != nil {
				return fmt.Errorf("store: marshal structured data: %w", err)
			}
		}

		batch.Queue(`
			INSERT INTO syslog.events (
				id, source_id, source_ip, received_at, facility, severity,
				version, timestamp, hostname, app_name, proc_id, msg_id,
				structured_data, message, device_type, event_type, raw_message
			) VALUES (
				$1::uuid, $2::uuid, $3::inet, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13::jsonb, $14, NULLIF($15, ''), NULLIF($16, ''), $17
			)`,
			e.ID, sourceIDs[e.SourceIP], e.SourceIP, e.ReceivedAt,
			e.Facility, e.Severity, e.Version, e.Timestamp,
			e.Hostname, e.AppName, e.ProcID, e.MsgID,
			sd, e.Message, e.DeviceType, e.EventType, e.RawMessage,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: insert events: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("store: close event batch: %w", err)
	}

	for ip, id := range sourceIDs {
		if err := r.BumpSource(ctx, id, counts[ip]); err != nil {
			// Counter drift is tolerable; the events themselves are committed.
			r.logger.Warn("store: source counter update failed",
				"source_ip", ip, "error", err.Error())
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Circular buffer
// ─────────────────────────────────────────────────────────────────────────────

// GetBufferSettings loads the singleton settings row. Returns defaults when
// the row does not exist yet.
func (r *SyslogRepo) GetBufferSettings(ctx context.Context) (*models.BufferSettings, error) {
	var s models.BufferSettings
	err := r.pool.QueryRow(ctx, `
		SELECT max_size_bytes, cleanup_threshold_percent, retention_days,
		       current_size_bytes, last_cleanup_at
		FROM syslog.buffer_settings
		WHERE id = 1`).Scan(
		&s.MaxSizeBytes, &s.CleanupThresholdPercent, &s.RetentionDays,
		&s.CurrentSizeBytes, &s.LastCleanupAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.BufferSettings{
			MaxSizeBytes:            10 * 1024 * 1024 * 1024,
			CleanupThresholdPercent: 80,
			RetentionDays:           30,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get buffer settings: %w", err)
	}
	return &s, nil
}

// EventsTableSize reports the current on-disk size of syslog.events.
func (r *SyslogRepo) EventsTableSize(ctx context.Context) (int64, error) {
	var size int64
	if err := r.pool.QueryRow(ctx,
		`SELECT pg_total_relation_size('syslog.events')`).Scan(&size); err != nil {
		return 0, fmt.Errorf("store: events table size: %w", err)
	}
	return size, nil
}

// UpdateCurrentSize records the measured table size on the settings row.
func (r *SyslogRepo) UpdateCurrentSize(ctx context.Context, size int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE syslog.buffer_settings
		SET current_size_bytes = $1, updated_at = NOW()
		WHERE id = 1`, size)
	if err != nil {
		return fmt.Errorf("store: update current size: %w", err)
	}
	return nil
}

// DeleteExpired removes the union of rows older than retentionDays and the
// oldest oldestLimit rows, in one statement. Returns the number of rows
// deleted.
func (r *SyslogRepo) DeleteExpired(ctx context.Context, retentionDays, oldestLimit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM syslog.events
		WHERE received_at < NOW() - make_interval(days => $1)
		OR id IN (
			SELECT id FROM syslog.events
			ORDER BY received_at ASC
			LIMIT $2
		)`, retentionDays, oldestLimit)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkCleanup stamps last_cleanup_at on the settings row.
func (r *SyslogRepo) MarkCleanup(ctx context.Context, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE syslog.buffer_settings
		SET last_cleanup_at = $1
		WHERE id = 1`, at)
	if err != nil {
		return fmt.Errorf("store: mark cleanup: %w", err)
	}
	return nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
