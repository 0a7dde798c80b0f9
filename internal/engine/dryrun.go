package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DryRun simulates engine progression by wall time instead of calling AWS: a
// run is PENDING until it's started, SUBMITTED for the first 10 seconds
// after starting, RUNNING for the next 30, then COMPLETED. It never talks to
// a network and is the default adapter (SPARKPILOT_DRY_RUN_MODE=true).
type DryRun struct {
	LogGroupPrefix string
}

// NewDryRun constructs a DryRun adapter using logGroupPrefix to materialize
// log group names (spec.md §4.4: "log_group = <prefix>/<environment_id>").
func NewDryRun(logGroupPrefix string) *DryRun {
	return &DryRun{LogGroupPrefix: logGroupPrefix}
}

func (d *DryRun) CreateVirtualCluster(_ context.Context, env EnvContext) (string, error) {
	if env.EKSClusterARN == "" {
		return "", fmt.Errorf("missing EKS cluster ARN")
	}
	if env.EKSNamespace == "" {
		return "", fmt.Errorf("missing EKS namespace")
	}
	return fmt.Sprintf("vc-%s", uuid.NewString()[:10]), nil
}

func (d *DryRun) StartJobRun(_ context.Context, env EnvContext, _ JobSpec, run RunSpec) (StartResult, error) {
	logGroup := logGroupFor(d.LogGroupPrefix, env.ID)
	streamPrefix := logStreamPrefixFor(run.ID, run.Attempt)
	return StartResult{
		EngineRunID:     fmt.Sprintf("jr-%s", uuid.NewString()[:12]),
		LogGroup:        logGroup,
		LogStreamPrefix: streamPrefix,
		DriverLogURI:    fmt.Sprintf("cloudwatch://%s/%s/driver", logGroup, streamPrefix),
		SparkUIURI:      fmt.Sprintf("https://sparkhistory.local/%s", run.ID),
	}, nil
}

func (d *DryRun) DescribeJobRun(_ context.Context, _ EnvContext, run RunSpec) (DescribeResult, error) {
	if run.CancellationRequested && run.EngineRunID == "" {
		return DescribeResult{EngineState: EngineStateCancelled}, nil
	}
	if run.StartedAt == nil {
		return DescribeResult{EngineState: EngineStatePending}, nil
	}
	elapsed := time.Since(*run.StartedAt)
	switch {
	case elapsed < 10*time.Second:
		return DescribeResult{EngineState: EngineStateSubmitted}, nil
	case elapsed < 40*time.Second:
		return DescribeResult{EngineState: EngineStateRunning}, nil
	default:
		return DescribeResult{EngineState: EngineStateCompleted}, nil
	}
}

func (d *DryRun) CancelJobRun(_ context.Context, _ EnvContext, run RunSpec) (string, error) {
	if run.EngineRunID == "" {
		return "", nil
	}
	return "", nil
}

func (d *DryRun) FetchLogLines(_ context.Context, _, _, logGroup, logStreamPrefix string, _ int) ([]string, error) {
	if logGroup == "" {
		return []string{}, nil
	}
	hint := logStreamPrefix
	if hint == "" {
		hint = "unknown-run"
	}
	return []string{
		fmt.Sprintf("[%s] Spark application started", hint),
		fmt.Sprintf("[%s] Executors requested", hint),
		fmt.Sprintf("[%s] Job completed successfully", hint),
	}, nil
}
