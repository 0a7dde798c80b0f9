package run

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
	"github.com/joshmcq/sparkpilot/internal/engine"
	"github.com/joshmcq/sparkpilot/internal/httpserver"
	"github.com/joshmcq/sparkpilot/internal/idempotency"
	"github.com/joshmcq/sparkpilot/pkg/environment"
	"github.com/joshmcq/sparkpilot/pkg/job"
	"github.com/joshmcq/sparkpilot/pkg/usage"
)

// Service implements run business logic: idempotent submission, lookup,
// cancellation, and log retrieval. Dispatch and reconciliation against the
// engine itself run out-of-band in the scheduler and reconciler loops; this
// service only ever touches the run at creation and cancellation.
type Service struct {
	Pool   *pgxpool.Pool
	Guard  *idempotency.Guard
	Engine engine.Adapter
	Rates  usage.Rates
}

func NewService(pool *pgxpool.Pool, guard *idempotency.Guard, adapter engine.Adapter, rates usage.Rates) *Service {
	return &Service{Pool: pool, Guard: guard, Engine: adapter, Rates: rates}
}

// Create submits a new run of jobID idempotently under scope
// "POST:/v1/jobs/{job_id}/runs". The environment must be ready, the job
// must exist, and the environment's quota must have room.
func (s *Service) Create(ctx context.Context, jobID uuid.UUID, idempotencyKey string, caller audit.Caller, req CreateRequest) (idempotency.Result, error) {
	return s.Guard.Execute(ctx, "POST:/v1/jobs/"+jobID.String()+"/runs", idempotencyKey, req, func(ctx context.Context, tx pgx.Tx) (idempotency.Outcome, error) {
		jobRow, err := job.NewStore(tx).ByID(ctx, jobID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return idempotency.Outcome{}, apierror.NotFound("job not found")
			}
			return idempotency.Outcome{}, fmt.Errorf("checking job: %w", err)
		}

		env, err := environment.NewStore(tx).ByID(ctx, jobRow.EnvironmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return idempotency.Outcome{}, apierror.NotFound("environment not found")
			}
			return idempotency.Outcome{}, fmt.Errorf("checking environment: %w", err)
		}
		if env.Status != "ready" {
			return idempotency.Outcome{}, apierror.Conflict("environment is not ready (status=%s)", env.Status)
		}

		store := NewStore(tx)
		if existing, err := store.ByJobAndIdempotencyKey(ctx, jobID, idempotencyKey); err == nil {
			return idempotency.Outcome{StatusCode: 201, Body: existing.ToResponse(), ResourceType: "run", ResourceID: existing.ID}, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Outcome{}, fmt.Errorf("checking existing run: %w", err)
		}

		timeoutSeconds := req.TimeoutSeconds
		if timeoutSeconds == 0 {
			timeoutSeconds = jobRow.TimeoutSeconds
		}
		if timeoutSeconds > env.MaxRunSeconds {
			return idempotency.Outcome{}, apierror.Validation("timeout_seconds (%d) exceeds environment limit (%d)", timeoutSeconds, env.MaxRunSeconds)
		}

		requested := req.RequestedResources.Normalized()
		if err := enforceQuota(ctx, tx, env, requested); err != nil {
			return idempotency.Outcome{}, err
		}

		// The effective argument list is resolved once, at creation time: the
		// override if the caller gave one, else the job's own args. Spark conf
		// stays a raw overlay merged by the engine adapter at dispatch time.
		args := req.Args
		if args == nil {
			args = jobRow.Args
		}
		sparkConfOverrides := req.SparkConf
		if sparkConfOverrides == nil {
			sparkConfOverrides = map[string]string{}
		}

		row, err := store.Insert(ctx, InsertParams{
			JobID:              jobID,
			EnvironmentID:      env.ID,
			IdempotencyKey:     idempotencyKey,
			RequestedResources: requested,
			ArgsOverrides:      args,
			SparkConfOverrides: sparkConfOverrides,
			TimeoutSeconds:     timeoutSeconds,
		})
		if err != nil {
			return idempotency.Outcome{}, err
		}

		details, _ := json.Marshal(map[string]any{
			"job_id":      jobID,
			"environment": env.ID,
		})
		if err := audit.Write(ctx, tx, audit.Event{
			TenantID:   env.TenantID,
			Actor:      caller.Actor,
			SourceIP:   caller.SourceIP,
			Action:     "run.create",
			EntityType: "run",
			EntityID:   row.ID.String(),
			Details:    details,
		}); err != nil {
			return idempotency.Outcome{}, err
		}

		return idempotency.Outcome{
			StatusCode:   201,
			Body:         row.ToResponse(),
			ResourceType: "run",
			ResourceID:   row.ID,
		}, nil
	})
}

// Get returns the run with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Response, error) {
	row, err := NewStore(s.Pool).ByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, apierror.NotFound("run not found")
		}
		return Response{}, err
	}
	return row.ToResponse(), nil
}

// List returns one offset-paginated page of runs, optionally filtered by
// tenant and/or state.
func (s *Service) List(ctx context.Context, tenantID *uuid.UUID, state *string, page httpserver.OffsetParams) (httpserver.OffsetPage[Response], error) {
	store := NewStore(s.Pool)
	rows, err := store.List(ctx, tenantID, state, page.PageSize, page.Offset)
	if err != nil {
		return httpserver.OffsetPage[Response]{}, err
	}
	total, err := store.CountFiltered(ctx, tenantID, state)
	if err != nil {
		return httpserver.OffsetPage[Response]{}, err
	}

	out := make([]Response, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToResponse())
	}
	return httpserver.NewOffsetPage(out, page, total), nil
}

// Cancel requests cancellation of a run. A run already in a terminal state
// is returned unchanged (cancelling a finished run is a no-op, not an
// error). A run still in {queued, dispatching} never reached the engine, so
// it is finalized to cancelled immediately and its (zero-duration) usage is
// recorded in the same transaction. Anything else (accepted, running) only
// has cancellation_requested flipped on — the reconciler loop is what
// actually calls the engine and observes the terminal state.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, caller audit.Caller) (Response, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("beginning cancel transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	store := NewStore(tx)
	row, err := store.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, apierror.NotFound("run not found")
		}
		return Response{}, fmt.Errorf("loading run: %w", err)
	}

	if TerminalStates[row.State] {
		return row.ToResponse(), nil
	}

	env, err := environment.NewStore(tx).ByID(ctx, row.EnvironmentID)
	if err != nil {
		return Response{}, fmt.Errorf("loading environment: %w", err)
	}

	switch row.State {
	case StateQueued, StateDispatching:
		ts := now()
		row.State = StateCancelled
		row.EndedAt = &ts
		if row.StartedAt == nil {
			row.StartedAt = &ts
		}
		if err := store.Update(ctx, row); err != nil {
			return Response{}, err
		}
		if _, err := usage.RecordIfAbsent(ctx, tx, env.TenantID, env.ID, row.ID, *row.StartedAt, *row.EndedAt,
			row.RequestedResources.TotalVCPU(), row.RequestedResources.TotalMemoryGB(), s.Rates); err != nil {
			return Response{}, fmt.Errorf("recording usage on cancel: %w", err)
		}
	default:
		row.CancellationRequested = true
		if err := store.Update(ctx, row); err != nil {
			return Response{}, err
		}
	}

	if err := audit.Write(ctx, tx, audit.Event{
		TenantID:   env.TenantID,
		Actor:      caller.Actor,
		SourceIP:   caller.SourceIP,
		Action:     "run.cancel.request",
		EntityType: "run",
		EntityID:   row.ID.String(),
	}); err != nil {
		return Response{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Response{}, fmt.Errorf("committing cancel: %w", err)
	}
	return row.ToResponse(), nil
}

// GetLogs fetches recent log lines for a run from its engine-assigned log
// group, via whichever adapter the control plane is running with.
func (s *Service) GetLogs(ctx context.Context, id uuid.UUID, limit int) (LogsResponse, error) {
	row, err := NewStore(s.Pool).ByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LogsResponse{}, apierror.NotFound("run not found")
		}
		return LogsResponse{}, err
	}

	env, err := environment.NewStore(s.Pool).ByID(ctx, row.EnvironmentID)
	if err != nil {
		return LogsResponse{}, fmt.Errorf("loading environment: %w", err)
	}

	var logGroup, logStreamPrefix string
	if row.LogGroup != nil {
		logGroup = *row.LogGroup
	}
	if row.LogStreamPrefix != nil {
		logStreamPrefix = *row.LogStreamPrefix
	}

	lines, err := s.Engine.FetchLogLines(ctx, env.CustomerRoleARN, env.Region, logGroup, logStreamPrefix, limit)
	if err != nil {
		return LogsResponse{}, apierror.UpstreamTransient(err, "fetching logs for run %s", row.ID)
	}

	return LogsResponse{
		RunID:           row.ID,
		LogGroup:        row.LogGroup,
		LogStreamPrefix: row.LogStreamPrefix,
		Lines:           lines,
	}, nil
}
