package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridwatch/netpulse/models"
)

// STIGRepo reads stig.targets, manages stig.audit_jobs, and writes
// stig.audit_results.
type STIGRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// GetTarget loads one audit target including its stored configuration blob.
// Returns (nil, nil) when it does not exist.
func (r *STIGRepo) GetTarget(ctx context.Context, id string) (*models.AuditTarget, error) {
	var t models.AuditTarget
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(ip_address::text, ''), platform, COALESCE(config_content, '')
		FROM stig.targets
		WHERE id = $1`, id).Scan(&t.ID, &t.Name, &t.IPAddress, &t.Platform, &t.Config)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get target %s: %w", id, err)
	}
	return &t, nil
}

// ClaimPendingJob atomically takes the oldest pending audit job and marks it
// running. Returns (nil, nil) when the queue is empty. Concurrent engine
// instances claim disjoint jobs via SKIP LOCKED.
func (r *STIGRepo) ClaimPendingJob(ctx context.Context) (*models.AuditJob, error) {
	var j models.AuditJob
	err := r.pool.QueryRow(ctx, `
		UPDATE stig.audit_jobs
		SET status = 'running', started_at = NOW()
		WHERE id = (
			SELECT id FROM stig.audit_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, target_id, benchmark_id, status, created_at, started_at`).Scan(
		&j.ID, &j.TargetID, &j.BenchmarkID, &j.Status, &j.CreatedAt, &j.StartedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim audit job: %w", err)
	}
	return &j, nil
}

// CompleteJob finalizes a job. An empty errMsg means success.
func (r *STIGRepo) CompleteJob(ctx context.Context, jobID string, errMsg string) error {
	status := models.JobCompleted
	if errMsg != "" {
		status = models.JobFailed
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE stig.audit_jobs
		SET status = $2, error_message = NULLIF($3, ''), completed_at = $4
		WHERE id = $1`,
		jobID, string(status), errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: complete job %s: %w", jobID, err)
	}
	return nil
}

// InsertResults writes the evaluation outcome for every rule of a job in one
// batch round-trip.
func (r *STIGRepo) InsertResults(ctx context.Context, results []models.AuditResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range results {
		res := &results[i]
		batch.Queue(`
			INSERT INTO stig.audit_results (
				job_id, rule_id, title, severity, status, finding_details
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			res.JobID, res.RuleID, res.Title,
			string(res.Severity), string(res.Status), res.FindingDetails,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: insert audit results: %w", err)
		}
	}
	return nil
}
