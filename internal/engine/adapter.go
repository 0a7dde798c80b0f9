// Package engine defines the abstract Spark execution engine the control
// plane dispatches onto, and the two implementations that satisfy it:
// DryRun (wall-clock simulation used by default and in tests) and
// EMRContainers (the real AWS EMR-on-EKS backend). Callers depend only on
// the Adapter interface, never on a concrete backend.
package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Engine-reported run states, mirroring EMR on EKS's JobRun.state values.
const (
	EngineStatePending       = "PENDING"
	EngineStateSubmitted     = "SUBMITTED"
	EngineStateRunning       = "RUNNING"
	EngineStateCompleted     = "COMPLETED"
	EngineStateFailed        = "FAILED"
	EngineStateCancelled     = "CANCELLED"
	EngineStateCancelPending = "CANCEL_PENDING"
)

// EnvContext is the subset of an Environment the adapter needs to act
// against the engine. Defined here (rather than importing pkg/environment)
// so this package has no dependency on the run/job/environment packages,
// which themselves depend on the engine interface to dispatch and
// reconcile — importing either direction would cycle.
type EnvContext struct {
	ID                  uuid.UUID
	Region              string
	CustomerRoleARN     string
	EKSClusterARN       string
	EKSNamespace        string
	EMRVirtualClusterID string
}

// JobSpec is the subset of a Job the adapter needs to start a run.
type JobSpec struct {
	Name             string
	ArtifactURI      string
	SparkConf        map[string]string
	RetryMaxAttempts int
}

// RunSpec is the subset of a Run the adapter needs to start, describe, or
// cancel it. Args is the already-resolved effective argument list (the
// run's override if one was given at creation, else the job's own args);
// SparkConfOverrides is the raw per-run overlay the adapter merges on top
// of the job's own spark_conf.
type RunSpec struct {
	ID                    uuid.UUID
	Attempt               int
	Args                  []string
	SparkConfOverrides    map[string]string
	EngineRunID           string
	CancellationRequested bool
	StartedAt             *time.Time
}

// StartResult is what StartJobRun returns on success.
type StartResult struct {
	EngineRunID       string
	LogGroup          string
	LogStreamPrefix   string
	DriverLogURI      string
	SparkUIURI        string
	UpstreamRequestID string
}

// DescribeResult is what DescribeJobRun returns.
type DescribeResult struct {
	EngineState  string
	ErrorMessage string
}

// Adapter is the capability set the control plane consumes from the Spark
// execution engine. CreateVirtualCluster's idempotency is the adapter's own
// responsibility — the core invokes it at most once per environment in the
// happy path, but a retried call must not create a second virtual cluster.
type Adapter interface {
	CreateVirtualCluster(ctx context.Context, env EnvContext) (string, error)
	StartJobRun(ctx context.Context, env EnvContext, job JobSpec, run RunSpec) (StartResult, error)
	DescribeJobRun(ctx context.Context, env EnvContext, run RunSpec) (DescribeResult, error)
	CancelJobRun(ctx context.Context, env EnvContext, run RunSpec) (upstreamRequestID string, err error)
	FetchLogLines(ctx context.Context, roleARN, region, logGroup, logStreamPrefix string, limit int) ([]string, error)
}

// mergedSparkConf overlays overrides onto base, returning a new map. Shared
// by every Adapter implementation so the merge semantics in spec.md §4.4
// ("job.spark_conf overlaid with run.spark_conf_overrides") apply uniformly.
func mergedSparkConf(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func logGroupFor(prefix string, envID uuid.UUID) string {
	return prefix + "/" + envID.String()
}

func logStreamPrefixFor(runID uuid.UUID, attempt int) string {
	return runID.String() + "/attempt-" + strconv.Itoa(attempt)
}
