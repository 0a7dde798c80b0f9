// Package reconciler runs the background loop that mirrors active Runs'
// engine-reported state back onto the platform, enforces per-run timeouts,
// and propagates requested cancellations.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/joshmcq/sparkpilot/internal/audit"
	"github.com/joshmcq/sparkpilot/internal/engine"
	"github.com/joshmcq/sparkpilot/internal/notify"
	"github.com/joshmcq/sparkpilot/internal/telemetry"
	"github.com/joshmcq/sparkpilot/pkg/environment"
	"github.com/joshmcq/sparkpilot/pkg/run"
	"github.com/joshmcq/sparkpilot/pkg/usage"
)

const actor = "worker:reconciler"

// runEventsChannel is where the reconciler publishes a best-effort fan-out
// of every run state it mirrors, for external notification consumers —
// adapted from the teacher's escalation engine publishing to
// "nightowl:alert:escalated" on each tier change.
const runEventsChannel = "sparkpilot:run:events"

// engineToPlatformState maps an EMR on EKS job-run state onto the
// platform's own run lifecycle. An engine state this map doesn't recognize
// is treated as failed, and the reconciler records a distinct audit event
// for it so an unexpected engine state is visible rather than silently
// swallowed into a generic failure.
var engineToPlatformState = map[string]string{
	engine.EngineStatePending:       run.StateAccepted,
	engine.EngineStateSubmitted:     run.StateAccepted,
	engine.EngineStateRunning:       run.StateRunning,
	engine.EngineStateCompleted:     run.StateSucceeded,
	engine.EngineStateFailed:        run.StateFailed,
	engine.EngineStateCancelled:     run.StateCancelled,
	engine.EngineStateCancelPending: run.StateRunning,
}

// Loop mirrors active runs' engine state, enforces timeouts, and propagates
// cancellations.
type Loop struct {
	Pool     *pgxpool.Pool
	Engine   engine.Adapter
	Notifier *notify.Notifier
	Redis    *redis.Client // nil when run-event fan-out is not configured
	Logger   *slog.Logger
	Interval time.Duration
	Limit    int
	Rates    usage.Rates
}

func New(pool *pgxpool.Pool, adapter engine.Adapter, notifier *notify.Notifier, rdb *redis.Client, logger *slog.Logger, interval time.Duration, limit int, rates usage.Rates) *Loop {
	return &Loop{Pool: pool, Engine: adapter, Notifier: notifier, Redis: rdb, Logger: logger, Interval: interval, Limit: limit, Rates: rates}
}

// publishRunEvent is a best-effort fan-out: a Redis outage must never fail
// a reconciliation, so the publish error is logged and swallowed.
func (l *Loop) publishRunEvent(ctx context.Context, runID uuid.UUID, state, engineState string) {
	if l.Redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"run_id":       runID.String(),
		"state":        state,
		"engine_state": engineState,
	})
	if err != nil {
		return
	}
	if err := l.Redis.Publish(ctx, runEventsChannel, payload).Err(); err != nil {
		l.Logger.Warn("publishing run event to redis", "run_id", runID, "error", err)
	}
}

// Run blocks, ticking every l.Interval, until ctx is cancelled. If once is
// true it performs a single pass and returns instead.
func (l *Loop) Run(ctx context.Context, once bool) error {
	if once {
		_, err := l.Tick(ctx)
		return err
	}

	l.Logger.Info("reconciler loop started", "interval", l.Interval)
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("reconciler loop stopped")
			return nil
		case <-ticker.C:
			if _, err := l.Tick(context.WithoutCancel(ctx)); err != nil {
				l.Logger.Error("reconciler tick", "error", err)
			}
		}
	}
}

// Tick reconciles up to l.Limit active runs in a single transaction,
// returning how many were processed.
func (l *Loop) Tick(ctx context.Context) (int, error) {
	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning reconciler tick: %w", err)
	}
	defer tx.Rollback(ctx)

	runStore := run.NewStore(tx)
	active, err := runStore.ActiveBatch(ctx, l.Limit)
	if err != nil {
		return 0, fmt.Errorf("listing active runs: %w", err)
	}

	processed := 0
	for _, r := range active {
		env, err := environment.NewStore(tx).ByID(ctx, r.EnvironmentID)
		if err != nil {
			l.Logger.Error("loading environment for run", "run_id", r.ID, "error", err)
			continue
		}

		if err := l.reconcileOne(ctx, tx, runStore, env, r); err != nil {
			l.Logger.Error("reconciling run failed", "run_id", r.ID, "error", err)
			if l.Notifier != nil {
				l.Notifier.NotifyFailure(ctx, notify.Event{
					Kind:       "run.reconcile_failed",
					ResourceID: r.ID.String(),
					Reason:     err.Error(),
				})
			}
		}
		processed++
	}

	if processed > 0 {
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("committing reconciler tick: %w", err)
		}
	}
	return processed, nil
}

func (l *Loop) envContext(env environment.Row) engine.EnvContext {
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

func (l *Loop) runSpec(r run.Row) engine.RunSpec {
	var engineRunID string
	if r.EMRJobRunID != nil {
		engineRunID = *r.EMRJobRunID
	}
	return engine.RunSpec{
		ID:                    r.ID,
		Attempt:               r.Attempt,
		CancellationRequested: r.CancellationRequested,
		EngineRunID:           engineRunID,
		StartedAt:             r.StartedAt,
	}
}

// reconcileOne checks a run's timeout first (a timed-out run is cancelled
// and finalized without consulting the engine's own state), then propagates
// any pending cancellation request, then mirrors the engine's reported state.
func (l *Loop) reconcileOne(ctx context.Context, tx pgx.Tx, runStore *run.Store, env environment.Row, r run.Row) error {
	if r.StartedAt != nil {
		elapsed := time.Since(*r.StartedAt)
		if elapsed > time.Duration(r.TimeoutSeconds)*time.Second {
			return l.timeoutCancel(ctx, tx, runStore, env, r)
		}
	}

	if r.CancellationRequested && r.EMRJobRunID != nil {
		if _, err := l.Engine.CancelJobRun(ctx, l.envContext(env), l.runSpec(r)); err != nil {
			return fmt.Errorf("cancelling run %s: %w", r.ID, err)
		}
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      actor,
			Action:     "run.cancel.dispatched",
			EntityType: "run",
			EntityID:   r.ID.String(),
		}); err != nil {
			return err
		}
	}

	describe, err := l.Engine.DescribeJobRun(ctx, l.envContext(env), l.runSpec(r))
	if err != nil {
		return fmt.Errorf("describing run %s: %w", r.ID, err)
	}

	mappedState, known := engineToPlatformState[describe.EngineState]
	if !known {
		mappedState = run.StateFailed
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      actor,
			Action:     "run.reconcile.unknown_state",
			EntityType: "run",
			EntityID:   r.ID.String(),
			Details:    mustJSON(map[string]string{"emr_state": describe.EngineState}),
		}); err != nil {
			return err
		}
	}

	r.State = mappedState
	telemetry.RunsReconciledTotal.WithLabelValues(mappedState).Inc()
	if describe.ErrorMessage != "" {
		r.ErrorMessage = &describe.ErrorMessage
	}

	if run.TerminalStates[mappedState] {
		if r.EndedAt == nil {
			now := time.Now().UTC()
			r.EndedAt = &now
		}
		if err := runStore.Update(ctx, r); err != nil {
			return err
		}
		if r.StartedAt != nil {
			if _, err := usage.RecordIfAbsent(ctx, tx, env.TenantID, env.ID, r.ID, *r.StartedAt, *r.EndedAt,
				r.RequestedResources.TotalVCPU(), r.RequestedResources.TotalMemoryGB(), l.Rates); err != nil {
				return fmt.Errorf("recording usage for run %s: %w", r.ID, err)
			}
		}
	} else {
		if err := runStore.Update(ctx, r); err != nil {
			return err
		}
	}

	if err := audit.Write(ctx, tx, audit.Event{
		TenantID:   env.TenantID,
		Actor:      actor,
		Action:     "run.reconciled",
		EntityType: "run",
		EntityID:   r.ID.String(),
		Details:    mustJSON(map[string]string{"emr_state": describe.EngineState, "state": mappedState}),
	}); err != nil {
		return err
	}

	l.publishRunEvent(ctx, r.ID, mappedState, describe.EngineState)
	return nil
}

func (l *Loop) timeoutCancel(ctx context.Context, tx pgx.Tx, runStore *run.Store, env environment.Row, r run.Row) error {
	r.CancellationRequested = true

	if r.EMRJobRunID != nil {
		if _, err := l.Engine.CancelJobRun(ctx, l.envContext(env), l.runSpec(r)); err != nil {
			return fmt.Errorf("cancelling timed out run %s: %w", r.ID, err)
		}
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      actor,
			Action:     "run.timeout_cancel.dispatched",
			EntityType: "run",
			EntityID:   r.ID.String(),
		}); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	msg := "Run exceeded timeout_seconds."
	r.State = run.StateTimedOut
	r.ErrorMessage = &msg
	r.EndedAt = &now
	telemetry.RunsReconciledTotal.WithLabelValues(run.StateTimedOut).Inc()
	if err := runStore.Update(ctx, r); err != nil {
		return err
	}

	if r.StartedAt != nil {
		if _, err := usage.RecordIfAbsent(ctx, tx, env.TenantID, env.ID, r.ID, *r.StartedAt, *r.EndedAt,
			r.RequestedResources.TotalVCPU(), r.RequestedResources.TotalMemoryGB(), l.Rates); err != nil {
			return fmt.Errorf("recording usage for timed out run %s: %w", r.ID, err)
		}
	}

	if l.Notifier != nil {
		l.Notifier.NotifyFailure(ctx, notify.Event{
			Kind:       "run.timed_out",
			ResourceID: r.ID.String(),
			Reason:     msg,
		})
	}

	if err := audit.Write(ctx, tx, audit.Event{
		TenantID:   env.TenantID,
		Actor:      actor,
		Action:     "run.timed_out",
		EntityType: "run",
		EntityID:   r.ID.String(),
	}); err != nil {
		return err
	}

	l.publishRunEvent(ctx, r.ID, run.StateTimedOut, "")
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
