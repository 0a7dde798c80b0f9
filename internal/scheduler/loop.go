// Package scheduler runs the background loop that dispatches queued Runs
// onto the Spark engine: one transaction per batch, one StartJobRun call per
// run, a dispatch failure fails only that run and moves on.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshmcq/sparkpilot/internal/audit"
	"github.com/joshmcq/sparkpilot/internal/engine"
	"github.com/joshmcq/sparkpilot/internal/notify"
	"github.com/joshmcq/sparkpilot/internal/telemetry"
	"github.com/joshmcq/sparkpilot/pkg/environment"
	"github.com/joshmcq/sparkpilot/pkg/job"
	"github.com/joshmcq/sparkpilot/pkg/run"
)

const actor = "worker:scheduler"

// Loop dispatches queued runs onto the engine adapter.
type Loop struct {
	Pool     *pgxpool.Pool
	Engine   engine.Adapter
	Notifier *notify.Notifier
	Logger   *slog.Logger
	Interval time.Duration
	Limit    int
}

func New(pool *pgxpool.Pool, adapter engine.Adapter, notifier *notify.Notifier, logger *slog.Logger, interval time.Duration, limit int) *Loop {
	return &Loop{Pool: pool, Engine: adapter, Notifier: notifier, Logger: logger, Interval: interval, Limit: limit}
}

// Run blocks, ticking every l.Interval, until ctx is cancelled. If once is
// true it performs a single pass and returns instead.
func (l *Loop) Run(ctx context.Context, once bool) error {
	if once {
		_, err := l.Tick(ctx)
		return err
	}

	l.Logger.Info("scheduler loop started", "interval", l.Interval)
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("scheduler loop stopped")
			return nil
		case <-ticker.C:
			if _, err := l.Tick(context.WithoutCancel(ctx)); err != nil {
				l.Logger.Error("scheduler tick", "error", err)
			}
		}
	}
}

// Tick dispatches up to l.Limit queued runs in a single transaction,
// returning how many were processed.
func (l *Loop) Tick(ctx context.Context) (int, error) {
	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning scheduler tick: %w", err)
	}
	defer tx.Rollback(ctx)

	runStore := run.NewStore(tx)
	queued, err := runStore.QueuedBatch(ctx, l.Limit)
	if err != nil {
		return 0, fmt.Errorf("listing queued runs: %w", err)
	}

	processed := 0
	for _, r := range queued {
		jobRow, err := job.NewStore(tx).ByID(ctx, r.JobID)
		if err != nil {
			l.Logger.Error("loading job for run", "run_id", r.ID, "error", err)
			continue
		}
		env, err := environment.NewStore(tx).ByID(ctx, r.EnvironmentID)
		if err != nil {
			l.Logger.Error("loading environment for run", "run_id", r.ID, "error", err)
			continue
		}

		if err := l.dispatch(ctx, tx, runStore, env, jobRow, r); err != nil {
			l.Logger.Error("dispatching run failed", "run_id", r.ID, "error", err)
			if l.Notifier != nil {
				l.Notifier.NotifyFailure(ctx, notify.Event{
					Kind:       "run.dispatch_failed",
					ResourceID: r.ID.String(),
					Reason:     err.Error(),
				})
			}
		}
		processed++
	}

	if processed > 0 {
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("committing scheduler tick: %w", err)
		}
	}
	return processed, nil
}

// envContext projects an environment row onto the subset of fields the
// engine adapter needs to start a job run.
func envContext(env environment.Row) engine.EnvContext {
	var emrVirtualClusterID string
	if env.EMRVirtualClusterID != nil {
		emrVirtualClusterID = *env.EMRVirtualClusterID
	}
	return engine.EnvContext{
		ID:                  env.ID,
		Region:              env.Region,
		CustomerRoleARN:     env.CustomerRoleARN,
		EMRVirtualClusterID: emrVirtualClusterID,
	}
}

// jobSpec projects a job row onto the engine adapter's job shape.
func jobSpec(jobRow job.Row) engine.JobSpec {
	return engine.JobSpec{
		Name:             jobRow.Name,
		ArtifactURI:      jobRow.ArtifactURI,
		SparkConf:        jobRow.SparkConf,
		RetryMaxAttempts: jobRow.RetryMaxAttempts,
	}
}

// runSpec projects a run row onto the engine adapter's dispatch-time run
// shape: the attempt number, the argument list resolved at creation time
// (the caller's args, else the job's) and the caller's conf overrides.
func runSpec(r run.Row) engine.RunSpec {
	return engine.RunSpec{
		ID:                 r.ID,
		Attempt:            r.Attempt,
		Args:               r.ArgsOverrides,
		SparkConfOverrides: r.SparkConfOverrides,
	}
}

func (l *Loop) dispatch(ctx context.Context, tx pgx.Tx, runStore *run.Store, env environment.Row, jobRow job.Row, r run.Row) error {
	if r.CancellationRequested {
		now := time.Now().UTC()
		r.State = run.StateCancelled
		r.EndedAt = &now
		return runStore.Update(ctx, r)
	}

	r.State = run.StateDispatching
	if err := runStore.Update(ctx, r); err != nil {
		return err
	}

	result, err := l.Engine.StartJobRun(ctx, envContext(env), jobSpec(jobRow), runSpec(r))
	if err != nil {
		now := time.Now().UTC()
		msg := err.Error()
		r.State = run.StateFailed
		r.ErrorMessage = &msg
		r.EndedAt = &now
		if uerr := runStore.Update(ctx, r); uerr != nil {
			return uerr
		}

		telemetry.RunsDispatchedTotal.WithLabelValues("failed").Inc()
		details, _ := json.Marshal(map[string]string{"error": msg})
		if aerr := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      actor,
			Action:     "run.dispatch_failed",
			EntityType: "run",
			EntityID:   r.ID.String(),
			Details:    details,
		}); aerr != nil {
			return aerr
		}
		return fmt.Errorf("starting job run: %w", err)
	}

	now := time.Now().UTC()
	r.State = run.StateAccepted
	r.StartedAt = &now
	r.EMRJobRunID = &result.EngineRunID
	r.LogGroup = &result.LogGroup
	r.LogStreamPrefix = &result.LogStreamPrefix
	if result.DriverLogURI != "" {
		r.DriverLogURI = &result.DriverLogURI
	}
	if result.SparkUIURI != "" {
		r.SparkUIURI = &result.SparkUIURI
	}
	if err := runStore.Update(ctx, r); err != nil {
		return err
	}
	telemetry.RunsDispatchedTotal.WithLabelValues("accepted").Inc()

	details, _ := json.Marshal(map[string]string{
		"emr_job_run_id":       result.EngineRunID,
		"upstream_request_id": result.UpstreamRequestID,
	})
	return audit.Write(ctx, tx, audit.Event{
		TenantID:   env.TenantID,
		Actor:      actor,
		Action:     "run.dispatched",
		EntityType: "run",
		EntityID:   r.ID.String(),
		Details:    details,
	})
}
