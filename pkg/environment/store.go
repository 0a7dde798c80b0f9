package environment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joshmcq/sparkpilot/internal/dbtx"
)

// Store performs raw queries against the environments and
// provisioning_operations tables.
type Store struct {
	DB dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store { return &Store{DB: db} }

const envColumns = `id, tenant_id, cloud, region, engine, provisioning_mode, status,
	customer_role_arn, eks_cluster_arn, eks_namespace, emr_virtual_cluster_id,
	warm_pool_enabled, max_concurrent_runs, max_vcpu, max_run_seconds, created_at, updated_at`

func (s *Store) scanEnv(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Cloud, &r.Region, &r.Engine, &r.ProvisioningMode, &r.Status,
		&r.CustomerRoleARN, &r.EKSClusterARN, &r.EKSNamespace, &r.EMRVirtualClusterID,
		&r.WarmPoolEnabled, &r.MaxConcurrentRuns, &r.MaxVCPU, &r.MaxRunSeconds, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, pgx.ErrNoRows
		}
		return Row{}, fmt.Errorf("scanning environment: %w", err)
	}
	return r, nil
}

// ByID returns the environment with the given id, or pgx.ErrNoRows.
func (s *Store) ByID(ctx context.Context, id uuid.UUID) (Row, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+envColumns+` FROM environments WHERE id = $1`, id)
	return s.scanEnv(row)
}

// List returns one offset-paginated page of environments, optionally
// filtered by tenant, newest first.
func (s *Store) List(ctx context.Context, tenantID *uuid.UUID, limit, offset int) ([]Row, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tenantID != nil {
		rows, err = s.DB.Query(ctx, `SELECT `+envColumns+` FROM environments WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, *tenantID, limit, offset)
	} else {
		rows, err = s.DB.Query(ctx, `SELECT `+envColumns+` FROM environments ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := s.scanEnv(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountFiltered returns the total number of environments matching the same
// tenant filter List applies.
func (s *Store) CountFiltered(ctx context.Context, tenantID *uuid.UUID) (int, error) {
	var (
		n   int
		err error
	)
	if tenantID != nil {
		err = s.DB.QueryRow(ctx, `SELECT count(*) FROM environments WHERE tenant_id = $1`, *tenantID).Scan(&n)
	} else {
		err = s.DB.QueryRow(ctx, `SELECT count(*) FROM environments`).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("counting environments: %w", err)
	}
	return n, nil
}

// Insert creates an environment row in "provisioning" status.
func (s *Store) Insert(ctx context.Context, req CreateRequest) (Row, error) {
	req = req.normalized()
	row := s.DB.QueryRow(ctx, `
		INSERT INTO environments (
			id, tenant_id, cloud, region, engine, provisioning_mode, status,
			customer_role_arn, eks_cluster_arn, eks_namespace, warm_pool_enabled,
			max_concurrent_runs, max_vcpu, max_run_seconds, created_at, updated_at
		) VALUES (
			gen_random_uuid(), $1, 'aws', $2, 'spark', $3, 'provisioning',
			$4, $5, $6, $7, $8, $9, $10, now(), now()
		)
		RETURNING `+envColumns,
		req.TenantID, req.Region, req.ProvisioningMode,
		req.CustomerRoleARN, req.EKSClusterARN, req.EKSNamespace, req.WarmPoolEnabled,
		req.Quotas.MaxConcurrentRuns, req.Quotas.MaxVCPU, req.Quotas.MaxRunSeconds,
	)
	return s.scanEnv(row)
}

// MarkReady transitions an environment to ready status with the given
// eks_cluster_arn/emr_virtual_cluster_id, as the provisioner loop fills them in.
func (s *Store) MarkReady(ctx context.Context, id uuid.UUID, eksClusterARN, emrVirtualClusterID *string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE environments SET status = 'ready', eks_cluster_arn = COALESCE($2, eks_cluster_arn),
			emr_virtual_cluster_id = COALESCE($3, emr_virtual_cluster_id), updated_at = now()
		WHERE id = $1`,
		id, eksClusterARN, emrVirtualClusterID,
	)
	if err != nil {
		return fmt.Errorf("marking environment ready: %w", err)
	}
	return nil
}

// MarkFailed transitions an environment to failed status.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `UPDATE environments SET status = 'failed', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking environment failed: %w", err)
	}
	return nil
}

const opColumns = `id, environment_id, state, step, message, logs_uri, idempotency_key, started_at, ended_at, created_at, updated_at`

func (s *Store) scanOp(row pgx.Row) (OperationRow, error) {
	var r OperationRow
	err := row.Scan(&r.ID, &r.EnvironmentID, &r.State, &r.Step, &r.Message, &r.LogsURI,
		&r.IdempotencyKey, &r.StartedAt, &r.EndedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OperationRow{}, pgx.ErrNoRows
		}
		return OperationRow{}, fmt.Errorf("scanning provisioning operation: %w", err)
	}
	return r, nil
}

// OperationByID returns the provisioning operation with the given id, or
// pgx.ErrNoRows.
func (s *Store) OperationByID(ctx context.Context, id uuid.UUID) (OperationRow, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+opColumns+` FROM provisioning_operations WHERE id = $1`, id)
	return s.scanOp(row)
}

// InsertOperation queues a new provisioning operation for an environment.
func (s *Store) InsertOperation(ctx context.Context, environmentID uuid.UUID, idempotencyKey string) (OperationRow, error) {
	logsURI := fmt.Sprintf("log-archive://sparkpilot-ops/provisioning/%s/%s.log", environmentID, uuid.New())
	message := "Queued for provisioning."
	row := s.DB.QueryRow(ctx, `
		INSERT INTO provisioning_operations (id, environment_id, state, step, message, logs_uri, idempotency_key, started_at, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, 'queued', 'queued', $2, $3, $4, now(), now(), now())
		RETURNING `+opColumns,
		environmentID, message, logsURI, idempotencyKey,
	)
	return s.scanOp(row)
}

// PendingOperations returns queued/in-progress provisioning operations,
// oldest first, for the provisioner loop to work through.
func (s *Store) PendingOperations(ctx context.Context, limit int) ([]OperationRow, error) {
	states := append([]string{StepQueued}, ProvisioningSteps...)
	rows, err := s.DB.Query(ctx, `
		SELECT `+opColumns+` FROM provisioning_operations
		WHERE state = ANY($1)
		ORDER BY created_at ASC
		LIMIT $2`,
		states, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending provisioning operations: %w", err)
	}
	defer rows.Close()

	var out []OperationRow
	for rows.Next() {
		r, err := s.scanOp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateOperation persists a provisioning operation's progress.
func (s *Store) UpdateOperation(ctx context.Context, op OperationRow) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE provisioning_operations
		SET state = $2, step = $3, message = $4, ended_at = $5, updated_at = now()
		WHERE id = $1`,
		op.ID, op.State, op.Step, op.Message, op.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("updating provisioning operation: %w", err)
	}
	return nil
}
