package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joshmcq/sparkpilot/internal/dbtx"
)

// Store performs raw queries against the runs table.
type Store struct {
	DB dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store { return &Store{DB: db} }

const runColumns = `id, job_id, environment_id, state, attempt, idempotency_key,
	requested_resources_json, args_overrides_json, spark_conf_overrides_json, timeout_seconds,
	emr_job_run_id, cancellation_requested, log_group, log_stream_prefix, driver_log_uri, spark_ui_uri,
	error_message, started_at, ended_at, created_at, updated_at`

func (s *Store) scanOne(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.JobID, &r.EnvironmentID, &r.State, &r.Attempt, &r.IdempotencyKey,
		&r.RequestedResources, &r.ArgsOverrides, &r.SparkConfOverrides, &r.TimeoutSeconds,
		&r.EMRJobRunID, &r.CancellationRequested, &r.LogGroup, &r.LogStreamPrefix, &r.DriverLogURI, &r.SparkUIURI,
		&r.ErrorMessage, &r.StartedAt, &r.EndedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, pgx.ErrNoRows
		}
		return Row{}, fmt.Errorf("scanning run: %w", err)
	}
	return r, nil
}

func (s *Store) scanRows(rows pgx.Rows) ([]Row, error) {
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

// ByID returns the run with the given id, or pgx.ErrNoRows.
func (s *Store) ByID(ctx context.Context, id uuid.UUID) (Row, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	return s.scanOne(row)
}

// ByJobAndIdempotencyKey returns the run previously created for (jobID, key),
// or pgx.ErrNoRows. CreateRun checks this directly (belt-and-suspenders
// alongside the idempotency guard) since (job_id, idempotency_key) is the
// entity-level uniqueness constraint spec.md names, independent of the
// request-scoped idempotency record.
func (s *Store) ByJobAndIdempotencyKey(ctx context.Context, jobID uuid.UUID, key string) (Row, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE job_id = $1 AND idempotency_key = $2`, jobID, key)
	return s.scanOne(row)
}

// listFilter builds the shared WHERE clause and args for List/CountFiltered,
// since both must apply the same tenant/state filters against the same
// positional placeholders.
func listFilter(tenantID *uuid.UUID, state *string) (string, []any) {
	clause := " WHERE 1=1"
	args := []any{}
	if tenantID != nil {
		args = append(args, *tenantID)
		clause += fmt.Sprintf(" AND e.tenant_id = $%d", len(args))
	}
	if state != nil {
		args = append(args, *state)
		clause += fmt.Sprintf(" AND r.state = $%d", len(args))
	}
	return clause, args
}

// List returns one page of runs, optionally filtered by tenant (via a join
// through environments) and/or state, newest first. offset/limit implement
// the control API's offset pagination.
func (s *Store) List(ctx context.Context, tenantID *uuid.UUID, state *string, limit, offset int) ([]Row, error) {
	clause, args := listFilter(tenantID, state)
	query := `SELECT r.id, r.job_id, r.environment_id, r.state, r.attempt, r.idempotency_key,
		r.requested_resources_json, r.args_overrides_json, r.spark_conf_overrides_json, r.timeout_seconds,
		r.emr_job_run_id, r.cancellation_requested, r.log_group, r.log_stream_prefix, r.driver_log_uri, r.spark_ui_uri,
		r.error_message, r.started_at, r.ended_at, r.created_at, r.updated_at
		FROM runs r JOIN environments e ON e.id = r.environment_id` + clause +
		fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return s.scanRows(rows)
}

// CountFiltered returns the total number of runs matching the same
// tenant/state filters List applies, for the response envelope's
// total_items/total_pages.
func (s *Store) CountFiltered(ctx context.Context, tenantID *uuid.UUID, state *string) (int, error) {
	clause, args := listFilter(tenantID, state)
	query := `SELECT count(*) FROM runs r JOIN environments e ON e.id = r.environment_id` + clause

	var n int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// InsertParams is the fully-resolved set of columns Insert writes; the
// service layer resolves overrides-or-job-defaults before calling Insert.
type InsertParams struct {
	JobID              uuid.UUID
	EnvironmentID      uuid.UUID
	IdempotencyKey     string
	RequestedResources RequestedResources
	ArgsOverrides      []string
	SparkConfOverrides map[string]string
	TimeoutSeconds     int
}

// Insert creates a run row in the queued state.
func (s *Store) Insert(ctx context.Context, p InsertParams) (Row, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO runs (
			id, job_id, environment_id, state, attempt, idempotency_key,
			requested_resources_json, args_overrides_json, spark_conf_overrides_json, timeout_seconds,
			cancellation_requested, created_at, updated_at
		) VALUES (
			gen_random_uuid(), $1, $2, 'queued', 1, $3, $4, $5, $6, $7, false, now(), now()
		)
		RETURNING `+runColumns,
		p.JobID, p.EnvironmentID, p.IdempotencyKey, p.RequestedResources, p.ArgsOverrides, p.SparkConfOverrides, p.TimeoutSeconds,
	)
	return s.scanOne(row)
}

// QueuedBatch returns up to limit queued runs, oldest first, for the
// scheduler loop to dispatch.
func (s *Store) QueuedBatch(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+runColumns+` FROM runs WHERE state = $1 ORDER BY created_at ASC LIMIT $2`,
		StateQueued, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing queued runs: %w", err)
	}
	return s.scanRows(rows)
}

// ActiveBatch returns up to limit runs in {accepted, running}, oldest
// updated_at first, for the reconciler loop to mirror.
func (s *Store) ActiveBatch(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+runColumns+` FROM runs WHERE state = ANY($1) ORDER BY updated_at ASC LIMIT $2`,
		[]string{StateAccepted, StateRunning}, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active runs: %w", err)
	}
	return s.scanRows(rows)
}

// Update persists a run's mutable fields back to the database. Every loop
// and the cancel command funnels its state change through this single
// write path.
func (s *Store) Update(ctx context.Context, r Row) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE runs SET
			state = $2, emr_job_run_id = $3, cancellation_requested = $4,
			log_group = $5, log_stream_prefix = $6, driver_log_uri = $7, spark_ui_uri = $8,
			error_message = $9, started_at = $10, ended_at = $11, updated_at = now()
		WHERE id = $1`,
		r.ID, r.State, r.EMRJobRunID, r.CancellationRequested,
		r.LogGroup, r.LogStreamPrefix, r.DriverLogURI, r.SparkUIURI,
		r.ErrorMessage, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", r.ID, err)
	}
	return nil
}

// now returns the current UTC time; Service.Cancel stamps the run with it.
func now() time.Time { return time.Now().UTC() }
