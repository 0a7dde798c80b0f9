package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joshmcq/sparkpilot/internal/dbtx"
)

// Store performs raw queries against the usage_records table.
type Store struct {
	DB dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store { return &Store{DB: db} }

const usageColumns = `id, tenant_id, environment_id, run_id, duration_seconds, total_vcpu, total_memory_gb,
	vcpu_seconds, memory_gb_seconds, estimated_cost_usd_micros, created_at`

func (s *Store) scanOne(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.TenantID, &r.EnvironmentID, &r.RunID, &r.DurationSeconds, &r.TotalVCPU, &r.TotalMemoryGB,
		&r.VCPUSeconds, &r.MemoryGBSeconds, &r.EstimatedCostUSDMicros, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, pgx.ErrNoRows
		}
		return Row{}, fmt.Errorf("scanning usage record: %w", err)
	}
	return r, nil
}

// ByRunID returns the usage record already recorded for a run, or
// pgx.ErrNoRows if none exists yet.
func (s *Store) ByRunID(ctx context.Context, runID uuid.UUID) (Row, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+usageColumns+` FROM usage_records WHERE run_id = $1`, runID)
	return s.scanOne(row)
}

// Insert records a run's usage. The caller is expected to have already
// checked ByRunID inside the same transaction as the run's terminal-state
// write, since (run_id) is unique and a duplicate insert is a programmer
// error, not a recoverable condition.
func (s *Store) Insert(ctx context.Context, r Row) (Row, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO usage_records (
			id, tenant_id, environment_id, run_id, duration_seconds, total_vcpu, total_memory_gb,
			vcpu_seconds, memory_gb_seconds, estimated_cost_usd_micros, created_at
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, now()
		)
		RETURNING `+usageColumns,
		r.TenantID, r.EnvironmentID, r.RunID, r.DurationSeconds, r.TotalVCPU, r.TotalMemoryGB,
		r.VCPUSeconds, r.MemoryGBSeconds, r.EstimatedCostUSDMicros,
	)
	return s.scanOne(row)
}

// ByTenantAndWindow returns a tenant's usage records whose created_at falls
// within [from, to] inclusive, newest first. The caller resolves default
// bounds before calling — this query takes whatever window it's given.
func (s *Store) ByTenantAndWindow(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Row, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+usageColumns+` FROM usage_records
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC`,
		tenantID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("listing usage records: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
