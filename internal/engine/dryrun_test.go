package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDryRun_CreateVirtualCluster_RequiresClusterAndNamespace(t *testing.T) {
	d := NewDryRun("/sparkpilot/runs")
	ctx := context.Background()

	if _, err := d.CreateVirtualCluster(ctx, EnvContext{ID: uuid.New()}); err == nil {
		t.Error("expected error when eks_cluster_arn is missing")
	}
	if _, err := d.CreateVirtualCluster(ctx, EnvContext{ID: uuid.New(), EKSClusterARN: "arn:aws:eks:us-east-1:1:cluster/x"}); err == nil {
		t.Error("expected error when eks_namespace is missing")
	}

	id, err := d.CreateVirtualCluster(ctx, EnvContext{
		ID: uuid.New(), EKSClusterARN: "arn:aws:eks:us-east-1:1:cluster/x", EKSNamespace: "spark",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected a non-empty virtual cluster id")
	}
}

func TestDryRun_StartJobRun_MaterializesLogLocations(t *testing.T) {
	d := NewDryRun("/sparkpilot/runs")
	envID, runID := uuid.New(), uuid.New()

	result, err := d.StartJobRun(context.Background(), EnvContext{ID: envID}, JobSpec{}, RunSpec{ID: runID, Attempt: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantLogGroup := "/sparkpilot/runs/" + envID.String()
	if result.LogGroup != wantLogGroup {
		t.Errorf("LogGroup = %q, want %q", result.LogGroup, wantLogGroup)
	}
	wantPrefix := runID.String() + "/attempt-1"
	if result.LogStreamPrefix != wantPrefix {
		t.Errorf("LogStreamPrefix = %q, want %q", result.LogStreamPrefix, wantPrefix)
	}
	if result.EngineRunID == "" {
		t.Error("expected a non-empty engine run id")
	}
}

func TestDryRun_DescribeJobRun_ProgressesByWallTime(t *testing.T) {
	d := NewDryRun("/sparkpilot/runs")

	notStarted := RunSpec{}
	res, err := d.DescribeJobRun(context.Background(), EnvContext{}, notStarted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EngineState != EngineStatePending {
		t.Errorf("state = %q, want PENDING for a run with no started_at", res.EngineState)
	}

	justStarted := time.Now()
	res, _ = d.DescribeJobRun(context.Background(), EnvContext{}, RunSpec{StartedAt: &justStarted})
	if res.EngineState != EngineStateSubmitted {
		t.Errorf("state = %q, want SUBMITTED within the first 10s", res.EngineState)
	}

	midRun := time.Now().Add(-20 * time.Second)
	res, _ = d.DescribeJobRun(context.Background(), EnvContext{}, RunSpec{StartedAt: &midRun})
	if res.EngineState != EngineStateRunning {
		t.Errorf("state = %q, want RUNNING between 10s and 40s", res.EngineState)
	}

	longRunning := time.Now().Add(-50 * time.Second)
	res, _ = d.DescribeJobRun(context.Background(), EnvContext{}, RunSpec{StartedAt: &longRunning})
	if res.EngineState != EngineStateCompleted {
		t.Errorf("state = %q, want COMPLETED after 40s", res.EngineState)
	}
}

func TestDryRun_DescribeJobRun_CancellationWithoutRemoteIDIsImmediate(t *testing.T) {
	d := NewDryRun("/sparkpilot/runs")

	res, err := d.DescribeJobRun(context.Background(), EnvContext{}, RunSpec{CancellationRequested: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EngineState != EngineStateCancelled {
		t.Errorf("state = %q, want CANCELLED when cancellation is requested and no engine run id exists", res.EngineState)
	}
}

func TestDryRun_FetchLogLines_EmptyWithoutLogGroup(t *testing.T) {
	d := NewDryRun("/sparkpilot/runs")

	lines, err := d.FetchLogLines(context.Background(), "", "", "", "", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected no lines without a log group, got %v", lines)
	}

	lines, err = d.FetchLogLines(context.Background(), "", "", "/sparkpilot/runs/env1", "run1/attempt-1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) == 0 {
		t.Error("expected synthesized lines when a log group is present")
	}
}
