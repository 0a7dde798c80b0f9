package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshmcq/sparkpilot/internal/apierror"
	"github.com/joshmcq/sparkpilot/internal/audit"
	"github.com/joshmcq/sparkpilot/internal/idempotency"
	"github.com/joshmcq/sparkpilot/pkg/environment"
)

// Service implements job business logic: idempotent creation and lookup.
type Service struct {
	Pool  *pgxpool.Pool
	Guard *idempotency.Guard
}

func NewService(pool *pgxpool.Pool, guard *idempotency.Guard) *Service {
	return &Service{Pool: pool, Guard: guard}
}

// Create registers a job against an environment idempotently under scope
// "POST:/v1/jobs". The environment must exist and must not be deleted.
func (s *Service) Create(ctx context.Context, idempotencyKey string, caller audit.Caller, req CreateRequest) (idempotency.Result, error) {
	req = req.normalized()
	return s.Guard.Execute(ctx, "POST:/v1/jobs", idempotencyKey, req, func(ctx context.Context, tx pgx.Tx) (idempotency.Outcome, error) {
		env, err := environment.NewStore(tx).ByID(ctx, req.EnvironmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return idempotency.Outcome{}, apierror.NotFound("environment not found")
			}
			return idempotency.Outcome{}, fmt.Errorf("checking environment: %w", err)
		}
		if env.Status == "deleted" {
			return idempotency.Outcome{}, apierror.Conflict("environment is deleted")
		}

		row, err := NewStore(tx).Insert(ctx, req)
		if err != nil {
			return idempotency.Outcome{}, err
		}

		details, _ := json.Marshal(map[string]string{
			"name":            row.Name,
			"artifact_uri":    row.ArtifactURI,
			"artifact_digest": row.ArtifactDigest,
		})
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      caller.Actor,
			SourceIP:   caller.SourceIP,
			Action:     "job.create",
			EntityType: "job",
			EntityID:   row.ID.String(),
			Details:    details,
		}); err != nil {
			return idempotency.Outcome{}, err
		}

		return idempotency.Outcome{
			StatusCode:   201,
			Body:         row.ToResponse(),
			ResourceType: "job",
			ResourceID:   row.ID,
		}, nil
	})
}

// Get returns the job with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Response, error) {
	row, err := NewStore(s.Pool).ByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, apierror.NotFound("job not found")
		}
		return Response{}, err
	}
	return row.ToResponse(), nil
}
