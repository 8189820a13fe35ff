// Package audit is the STIG engine service: it claims pending audit jobs,
// resolves the benchmark's rules from the library, parses the target's stored
// configuration, evaluates every rule, and persists the results.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/pkg/netpulse/obs"
	"github.com/gridwatch/netpulse/stig/junos"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// JobStore is the relational surface of the engine.
type JobStore interface {
	ClaimPendingJob(ctx context.Context) (*models.AuditJob, error)
	GetTarget(ctx context.Context, id string) (*models.AuditTarget, error)
	CompleteJob(ctx context.Context, jobID string, errMsg string) error
	InsertResults(ctx context.Context, results []models.AuditResult) error
}

// RuleSource resolves a benchmark ID to its rule list (the library indexer).
type RuleSource interface {
	Rules(benchmarkID string) ([]models.STIGRule, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the Engine.
type Config struct {
	// PollInterval is the idle wait between job-queue checks. Default 5 s.
	PollInterval time.Duration
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
}

// Engine runs audit jobs. Create with New; Run blocks until ctx cancels.
type Engine struct {
	cfg    Config
	store  JobStore
	rules  RuleSource
	logger *slog.Logger

	done chan struct{}
}

// New constructs an Engine.
func New(cfg Config, store JobStore, rules RuleSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.withDefaults()
	return &Engine{
		cfg:    cfg,
		store:  store,
		rules:  rules,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run claims and executes jobs until ctx is cancelled. Job failures mark the
// job failed and never kill the loop.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	for {
		job, err := e.store.ClaimPendingJob(ctx)
		if err != nil {
			e.logger.Error("audit: job claim failed", "error", err.Error())
		} else if job != nil {
			e.runJob(ctx, job)
			continue // drain the queue before sleeping
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// Stop waits for the run loop to exit after its context is cancelled.
func (e *Engine) Stop() {
	<-e.done
}

func (e *Engine) runJob(ctx context.Context, job *models.AuditJob) {
	e.logger.Info("audit: job started",
		"job_id", job.ID, "target_id", job.TargetID, "benchmark", job.BenchmarkID)

	results, err := e.Execute(ctx, job)
	if err != nil {
		e.logger.Error("audit: job failed", "job_id", job.ID, "error", err.Error())
		if cErr := e.store.CompleteJob(ctx, job.ID, err.Error()); cErr != nil {
			e.logger.Error("audit: job finalize failed", "job_id", job.ID, "error", cErr.Error())
		}
		return
	}

	if err := e.store.InsertResults(ctx, results); err != nil {
		e.logger.Error("audit: result insert failed", "job_id", job.ID, "error", err.Error())
		if cErr := e.store.CompleteJob(ctx, job.ID, err.Error()); cErr != nil {
			e.logger.Error("audit: job finalize failed", "job_id", job.ID, "error", cErr.Error())
		}
		return
	}
	if err := e.store.CompleteJob(ctx, job.ID, ""); err != nil {
		e.logger.Error("audit: job finalize failed", "job_id", job.ID, "error", err.Error())
		return
	}

	summary := summarize(results)
	e.logger.Info("audit: job completed",
		"job_id", job.ID,
		"rules", len(results),
		"pass", summary[models.CheckPass],
		"fail", summary[models.CheckFail],
		"not_applicable", summary[models.CheckNotApplicable],
		"not_reviewed", summary[models.CheckNotReviewed],
	)
}

// Execute evaluates one job and returns the per-rule results without
// persisting them.
func (e *Engine) Execute(ctx context.Context, job *models.AuditJob) ([]models.AuditResult, error) {
	target, err := e.store.GetTarget(ctx, job.TargetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("audit: target %s not found", job.TargetID)
	}
	if target.Config == "" {
		return nil, fmt.Errorf("audit: target %s has no stored configuration", job.TargetID)
	}

	rules, err := e.rules.Rules(job.BenchmarkID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("audit: benchmark %s has no rules", job.BenchmarkID)
	}

	results := EvaluateConfig(target, job.ID, rules)
	for i := range results {
		obs.STIGEvaluations.WithLabelValues(string(results[i].Status)).Inc()
	}
	return results, nil
}

// EvaluateConfig runs the evaluator over a configuration blob. JunOS targets
// get the full brace-grammar extraction; for other platforms the typed
// sections stay mostly empty and the handler chain degrades to raw-content
// probes plus the vendor-neutral pattern fallback.
func EvaluateConfig(target *models.AuditTarget, jobID string, rules []models.STIGRule) []models.AuditResult {
	cfg := junos.Parse(target.Config)
	return junos.NewEvaluator(cfg).EvaluateAll(jobID, rules)
}

func summarize(results []models.AuditResult) map[models.CheckStatus]int {
	out := make(map[models.CheckStatus]int)
	for i := range results {
		out[results[i].Status]++
	}
	return out
}
