package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joshmcq/sparkpilot/internal/dbtx"
)

// Store performs raw queries against the jobs table.
type Store struct {
	DB dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store { return &Store{DB: db} }

const jobColumns = `id, environment_id, name, artifact_uri, artifact_digest, entrypoint,
	args_json, spark_conf_json, retry_max_attempts, timeout_seconds, created_at, updated_at`

func (s *Store) scanOne(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.EnvironmentID, &r.Name, &r.ArtifactURI, &r.ArtifactDigest, &r.Entrypoint,
		&r.Args, &r.SparkConf, &r.RetryMaxAttempts, &r.TimeoutSeconds, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, pgx.ErrNoRows
		}
		return Row{}, fmt.Errorf("scanning job: %w", err)
	}
	return r, nil
}

// ByID returns the job with the given id, or pgx.ErrNoRows.
func (s *Store) ByID(ctx context.Context, id uuid.UUID) (Row, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return s.scanOne(row)
}

// Insert creates a job row.
func (s *Store) Insert(ctx context.Context, req CreateRequest) (Row, error) {
	req = req.normalized()
	row := s.DB.QueryRow(ctx, `
		INSERT INTO jobs (
			id, environment_id, name, artifact_uri, artifact_digest, entrypoint,
			args_json, spark_conf_json, retry_max_attempts, timeout_seconds, created_at, updated_at
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now()
		)
		RETURNING `+jobColumns,
		req.EnvironmentID, req.Name, req.ArtifactURI, req.ArtifactDigest, req.Entrypoint,
		req.Args, req.SparkConf, req.RetryMaxAttempts, req.TimeoutSeconds,
	)
	return s.scanOne(row)
}
