package environment

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
	"github.com/joshmcq/sparkpilot/internal/httpserver"
	"github.com/joshmcq/sparkpilot/internal/idempotency"
	"github.com/joshmcq/sparkpilot/pkg/tenant"
)

// Service implements environment business logic: idempotent creation,
// listing, and lookup. Provisioning itself is driven by the background
// provisioner loop, not this service.
type Service struct {
	Pool  *pgxpool.Pool
	Guard *idempotency.Guard
}

func NewService(pool *pgxpool.Pool, guard *idempotency.Guard) *Service {
	return &Service{Pool: pool, Guard: guard}
}

// Create queues a new environment for provisioning idempotently under scope
// "POST:/v1/environments". It returns the queued ProvisioningOperation, not
// the environment itself — clients poll the operation to learn when the
// environment becomes ready.
func (s *Service) Create(ctx context.Context, idempotencyKey string, caller audit.Caller, req CreateRequest) (idempotency.Result, error) {
	req = req.normalized()
	return s.Guard.Execute(ctx, "POST:/v1/environments", idempotencyKey, req, func(ctx context.Context, tx pgx.Tx) (idempotency.Outcome, error) {
		if _, err := tenant.NewStore(tx).ByID(ctx, req.TenantID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return idempotency.Outcome{}, apierror.NotFound("tenant not found")
			}
			return idempotency.Outcome{}, fmt.Errorf("checking tenant: %w", err)
		}

		if req.ProvisioningMode == "byoc_lite" {
			if req.EKSClusterARN == nil || *req.EKSClusterARN == "" {
				return idempotency.Outcome{}, apierror.Validation("eks_cluster_arn is required for byoc_lite.")
			}
			if req.EKSNamespace == nil || *req.EKSNamespace == "" {
				return idempotency.Outcome{}, apierror.Validation("eks_namespace is required for byoc_lite.")
			}
		}

		store := NewStore(tx)
		env, err := store.Insert(ctx, req)
		if err != nil {
			return idempotency.Outcome{}, err
		}

		op, err := store.InsertOperation(ctx, env.ID, idempotencyKey)
		if err != nil {
			return idempotency.Outcome{}, err
		}

		details, _ := json.Marshal(map[string]any{
			"region":              env.Region,
			"provisioning_mode":   env.ProvisioningMode,
			"eks_cluster_arn":     orEmpty(env.EKSClusterARN),
			"eks_namespace":       orEmpty(env.EKSNamespace),
			"warm_pool_enabled":   env.WarmPoolEnabled,
			"max_concurrent_runs": env.MaxConcurrentRuns,
			"max_vcpu":            env.MaxVCPU,
			"max_run_seconds":     env.MaxRunSeconds,
		})
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      caller.Actor,
			SourceIP:   caller.SourceIP,
			Action:     "environment.create",
			EntityType: "environment",
			EntityID:   env.ID.String(),
			Details:    details,
		}); err != nil {
			return idempotency.Outcome{}, err
		}

		return idempotency.Outcome{
			StatusCode:   201,
			Body:         op.ToResponse(),
			ResourceType: "provisioning_operation",
			ResourceID:   op.ID,
		}, nil
	})
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List returns one offset-paginated page of environments, optionally scoped
// to a tenant.
func (s *Service) List(ctx context.Context, tenantID *uuid.UUID, page httpserver.OffsetParams) (httpserver.OffsetPage[Response], error) {
	store := NewStore(s.Pool)
	rows, err := store.List(ctx, tenantID, page.PageSize, page.Offset)
	if err != nil {
		return httpserver.OffsetPage[Response]{}, err
	}
	total, err := store.CountFiltered(ctx, tenantID)
	if err != nil {
		return httpserver.OffsetPage[Response]{}, err
	}

	out := make([]Response, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToResponse())
	}
	return httpserver.NewOffsetPage(out, page, total), nil
}

// Get returns the environment with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Response, error) {
	row, err := NewStore(s.Pool).ByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, apierror.NotFound("environment not found")
		}
		return Response{}, err
	}
	return row.ToResponse(), nil
}

// GetProvisioningOperation returns the operation with the given id.
func (s *Service) GetProvisioningOperation(ctx context.Context, id uuid.UUID) (OperationResponse, error) {
	row, err := NewStore(s.Pool).OperationByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OperationResponse{}, apierror.NotFound("provisioning operation not found")
		}
		return OperationResponse{}, err
	}
	return row.ToResponse(), nil
}
