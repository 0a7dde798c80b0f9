package run

import (
	"context"
	"fmt"

	"github.com/joshmcq/sparkpilot/internal/apierror"
	"github.com/joshmcq/sparkpilot/internal/dbtx"
	"github.com/joshmcq/sparkpilot/internal/telemetry"
	"github.com/joshmcq/sparkpilot/pkg/environment"
)

// enforceQuota checks an environment's concurrent-run and vCPU quotas before
// admitting a new run. The count check runs first, then the vCPU sum check,
// matching the order the control plane has always enforced them in — a
// deployment over count but under vCPU still gets the clearer "concurrent
// run limit reached" message.
//
// Both checks read then decide without a row lock spanning the whole
// evaluation, so two concurrent admissions can both observe capacity and
// both be admitted, running the environment briefly over quota. That's an
// accepted non-atomicity: good-enough concurrency control for a burst
// dispatcher, not an exact admission gate.
func enforceQuota(ctx context.Context, db dbtx.DBTX, env environment.Row, requested RequestedResources) error {
	var activeCount int
	err := db.QueryRow(ctx, `
		SELECT count(*) FROM runs WHERE environment_id = $1 AND state = ANY($2)`,
		env.ID, activeStateList(),
	).Scan(&activeCount)
	if err != nil {
		return fmt.Errorf("counting active runs: %w", err)
	}
	if activeCount >= env.MaxConcurrentRuns {
		telemetry.QuotaRejectionsTotal.WithLabelValues("max_concurrent_runs").Inc()
		return apierror.QuotaExceeded("concurrent run limit reached (%d)", env.MaxConcurrentRuns)
	}

	rows, err := db.Query(ctx, `
		SELECT requested_resources_json FROM runs WHERE environment_id = $1 AND state = ANY($2)`,
		env.ID, activeStateList(),
	)
	if err != nil {
		return fmt.Errorf("summing active vcpu: %w", err)
	}
	defer rows.Close()

	activeVCPU := 0
	for rows.Next() {
		var r RequestedResources
		if err := rows.Scan(&r); err != nil {
			return fmt.Errorf("scanning active run resources: %w", err)
		}
		activeVCPU += r.TotalVCPU()
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("summing active vcpu: %w", err)
	}

	if activeVCPU+requested.TotalVCPU() > env.MaxVCPU {
		telemetry.QuotaRejectionsTotal.WithLabelValues("max_vcpu").Inc()
		return apierror.QuotaExceeded("vcpu quota exceeded (%d)", env.MaxVCPU)
	}
	return nil
}

func activeStateList() []string {
	return []string{StateQueued, StateDispatching, StateAccepted, StateRunning}
}
