// Package app wires SparkPilot's dependencies together and runs the process
// in whichever mode config.Mode selects: the HTTP API, or one of the three
// background loops that provision environments, dispatch runs, and
// reconcile their engine state against the platform.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/joshmcq/sparkpilot/internal/config"
	"github.com/joshmcq/sparkpilot/internal/engine"
	"github.com/joshmcq/sparkpilot/internal/httpserver"
	"github.com/joshmcq/sparkpilot/internal/idempotency"
	"github.com/joshmcq/sparkpilot/internal/notify"
	"github.com/joshmcq/sparkpilot/internal/platform"
	"github.com/joshmcq/sparkpilot/internal/provisioner"
	"github.com/joshmcq/sparkpilot/internal/reconciler"
	"github.com/joshmcq/sparkpilot/internal/scheduler"
	"github.com/joshmcq/sparkpilot/internal/telemetry"
	"github.com/joshmcq/sparkpilot/internal/version"
	"github.com/joshmcq/sparkpilot/pkg/environment"
	"github.com/joshmcq/sparkpilot/pkg/job"
	"github.com/joshmcq/sparkpilot/pkg/run"
	"github.com/joshmcq/sparkpilot/pkg/tenant"
	"github.com/joshmcq/sparkpilot/pkg/usage"
)

// Run loads dependencies and runs the process in whichever mode cfg.Mode
// selects. It blocks until ctx is cancelled, except in a background-loop
// mode with cfg.Once set, where it performs a single pass and returns.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "sparkpilot", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
	}

	adapter, err := buildEngineAdapter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building engine adapter: %w", err)
	}

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	guard := &idempotency.Guard{Pool: pool}
	rates := usage.Rates{VCPUSecondMicros: cfg.VCPUSecondRate, MemoryGBSecondMicros: cfg.MemoryGBSecondRate}
	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, adapter, guard, rates)
	case "provisioner":
		loop := provisioner.New(pool, adapter, notifier, logger, interval, cfg.QueueBatchSize)
		return loop.Run(ctx, cfg.Once)
	case "scheduler":
		loop := scheduler.New(pool, adapter, notifier, logger, interval, cfg.QueueBatchSize)
		return loop.Run(ctx, cfg.Once)
	case "reconciler":
		loop := reconciler.New(pool, adapter, notifier, rdb, logger, interval, cfg.QueueBatchSize, rates)
		return loop.Run(ctx, cfg.Once)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// buildEngineAdapter selects the Spark engine adapter: DryRun by default, or
// the real AWS EMR on EKS adapter when dry-run mode is explicitly disabled.
func buildEngineAdapter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Adapter, error) {
	if cfg.DryRunMode {
		logger.Info("engine adapter: dry-run (no AWS calls will be made)")
		return engine.NewDryRun(cfg.LogGroupPrefix), nil
	}

	logger.Info("engine adapter: EMR on EKS (real AWS calls)", "region", cfg.AWSRegion)
	return engine.NewEMRContainers(ctx, cfg.AWSRegion, cfg.LogGroupPrefix, cfg.EMRExecutionRoleARN, cfg.EMRReleaseLabel)
}

// runAPI builds the domain services and handlers and serves the HTTP API
// until ctx is cancelled.
func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, adapter engine.Adapter, guard *idempotency.Guard, rates usage.Rates) error {
	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)
	server := httpserver.NewServer(httpserver.Config{CORSAllowedOrigins: cfg.CORSAllowedOrigins}, logger, pool, rdb, metricsReg)

	tenantService := tenant.NewService(pool, guard)
	tenantHandler := tenant.NewHandler(tenantService, logger)

	environmentService := environment.NewService(pool, guard)
	environmentHandler := environment.NewHandler(environmentService, logger)

	jobService := job.NewService(pool, guard)
	jobHandler := job.NewHandler(jobService, logger)

	runService := run.NewService(pool, guard, adapter, rates)
	runHandler := run.NewHandler(runService, logger)

	usageService := usage.NewService(pool, rates)
	usageHandler := usage.NewHandler(usageService, logger)

	server.APIRouter.Mount("/tenants", tenantHandler.Routes())
	server.APIRouter.Mount("/environments", environmentHandler.Routes())
	server.APIRouter.Mount("/provisioning-operations", environmentHandler.OperationRoutes())
	server.APIRouter.Mount("/jobs", jobHandler.Routes())
	server.APIRouter.Mount("/jobs/{job_id}/runs", runHandler.CreateRoutes())
	server.APIRouter.Mount("/runs", runHandler.Routes())
	server.APIRouter.Mount("/usage", usageHandler.Routes())

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serving http: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
