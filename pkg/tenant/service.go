package tenant

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
)

// Service implements tenant business logic: idempotent creation and lookup.
type Service struct {
	Pool  *pgxpool.Pool
	Guard *idempotency.Guard
}

func NewService(pool *pgxpool.Pool, guard *idempotency.Guard) *Service {
	return &Service{Pool: pool, Guard: guard}
}

// Create creates a tenant idempotently under scope "POST:/v1/tenants".
func (s *Service) Create(ctx context.Context, idempotencyKey string, caller audit.Caller, req CreateRequest) (idempotency.Result, error) {
	return s.Guard.Execute(ctx, "POST:/v1/tenants", idempotencyKey, req, func(ctx context.Context, tx pgx.Tx) (idempotency.Outcome, error) {
		store := NewStore(tx)

		if _, err := store.ByName(ctx, req.Name); err == nil {
			return idempotency.Outcome{}, apierror.Conflict("tenant name %q already exists", req.Name)
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Outcome{}, fmt.Errorf("checking tenant name uniqueness: %w", err)
		}

		row, err := store.Insert(ctx, req.Name)
		if err != nil {
			return idempotency.Outcome{}, err
		}

		details, _ := json.Marshal(map[string]string{"name": row.Name})
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   row.ID,
			Actor:      caller.Actor,
			SourceIP:   caller.SourceIP,
			Action:     "tenant.create",
			EntityType: "tenant",
			EntityID:   row.ID.String(),
			Details:    details,
		}); err != nil {
			return idempotency.Outcome{}, err
		}

		return idempotency.Outcome{
			StatusCode:   201,
			Body:         row.ToResponse(),
			ResourceType: "tenant",
			ResourceID:   row.ID,
		}, nil
	})
}

// Get returns the tenant with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Response, error) {
	store := NewStore(s.Pool)
	row, err := store.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, apierror.NotFound("tenant not found")
		}
		return Response{}, err
	}
	return row.ToResponse(), nil
}
