package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshmcq/sparkpilot/internal/apierror"
	"github.com/joshmcq/sparkpilot/internal/dbtx"
)

// Service implements usage recording and retrieval.
type Service struct {
	Pool  *pgxpool.Pool
	Rates Rates
}

func NewService(pool *pgxpool.Pool, rates Rates) *Service {
	return &Service{Pool: pool, Rates: rates}
}

// RecordIfAbsent records a run's usage exactly once. db is the transaction
// the caller is already using to write the run's terminal state — usage
// recording and the state transition commit or roll back together. If a
// record already exists for runID (a re-processed batch, a retried
// reconcile pass) this is a no-op and returns the existing row.
func RecordIfAbsent(ctx context.Context, db dbtx.DBTX, tenantID, environmentID, runID uuid.UUID, startedAt, endedAt time.Time, totalVCPU, totalMemoryGB int, rates Rates) (Row, error) {
	store := &Store{DB: db}
	existing, err := store.ByRunID(ctx, runID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Row{}, fmt.Errorf("checking existing usage record: %w", err)
	}

	row := computed(tenantID, environmentID, runID, startedAt, endedAt, totalVCPU, totalMemoryGB, rates)
	return store.Insert(ctx, row)
}

// GetUsage returns a tenant's usage summary over [from, to]. A nil to
// defaults to now and a nil from to 30 days before to, matching the control
// plane's default billing lookback.
func (s *Service) GetUsage(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) (Summary, error) {
	window := to
	resolvedTo := time.Now().UTC()
	if window != nil {
		resolvedTo = *window
	}
	resolvedFrom := resolvedTo.Add(-30 * 24 * time.Hour)
	if from != nil {
		resolvedFrom = *from
	}
	if resolvedFrom.After(resolvedTo) {
		return Summary{}, apierror.Validation("from must not be after to")
	}

	rows, err := (&Store{DB: s.Pool}).ByTenantAndWindow(ctx, tenantID, resolvedFrom, resolvedTo)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		TenantID: tenantID,
		From:     resolvedFrom,
		To:       resolvedTo,
		Records:  make([]Response, 0, len(rows)),
	}
	for _, r := range rows {
		summary.TotalVCPUSeconds += r.VCPUSeconds
		summary.TotalMemoryGBSeconds += r.MemoryGBSeconds
		summary.TotalEstimatedCostUSDMicros += r.EstimatedCostUSDMicros
		summary.Records = append(summary.Records, r.ToResponse())
	}
	return summary, nil
}
