package scheduler

import (
	"testing"

	"github.com/google/uuid"

	"github.com/joshmcq/sparkpilot/pkg/environment"
	"github.com/joshmcq/sparkpilot/pkg/job"
	"github.com/joshmcq/sparkpilot/pkg/run"
)

// Full integration (a queued run actually dispatched against an engine
// adapter inside a transaction) requires a database; these are unit-level
// smoke tests of the pure row-to-engine-shape projections dispatch builds
// on.

func TestEnvContext_ProjectsFields(t *testing.T) {
	envID := uuid.New()
	vc := "vc-123"
	env := environment.Row{
		ID:                  envID,
		Region:              "us-east-1",
		CustomerRoleARN:     "arn:aws:iam::111111111111:role/sparkpilot",
		EMRVirtualClusterID: &vc,
	}

	got := envContext(env)
	if got.ID != envID || got.Region != env.Region || got.CustomerRoleARN != env.CustomerRoleARN {
		t.Errorf("envContext() = %+v, want fields copied from %+v", got, env)
	}
	if got.EMRVirtualClusterID != vc {
		t.Errorf("envContext().EMRVirtualClusterID = %q, want %q", got.EMRVirtualClusterID, vc)
	}
}

func TestEnvContext_NilVirtualClusterIDBecomesEmptyString(t *testing.T) {
	got := envContext(environment.Row{ID: uuid.New()})
	if got.EMRVirtualClusterID != "" {
		t.Errorf("envContext() with nil EMRVirtualClusterID = %q, want empty string", got.EMRVirtualClusterID)
	}
}

func TestJobSpec_ProjectsFields(t *testing.T) {
	jobRow := job.Row{
		Name:             "daily-etl",
		ArtifactURI:      "s3://bucket/etl.py",
		SparkConf:        map[string]string{"spark.executor.memory": "4g"},
		RetryMaxAttempts: 3,
	}

	got := jobSpec(jobRow)
	if got.Name != jobRow.Name || got.ArtifactURI != jobRow.ArtifactURI || got.RetryMaxAttempts != jobRow.RetryMaxAttempts {
		t.Errorf("jobSpec() = %+v, want fields copied from %+v", got, jobRow)
	}
	if got.SparkConf["spark.executor.memory"] != "4g" {
		t.Errorf("jobSpec().SparkConf = %v, want spark conf carried through", got.SparkConf)
	}
}

func TestRunSpec_ProjectsFieldsAndOverrides(t *testing.T) {
	runID := uuid.New()
	r := run.Row{
		ID:                 runID,
		Attempt:            2,
		ArgsOverrides:      []string{"--date", "2026-07-29"},
		SparkConfOverrides: map[string]string{"spark.sql.shuffle.partitions": "64"},
	}

	got := runSpec(r)
	if got.ID != runID || got.Attempt != r.Attempt {
		t.Errorf("runSpec() = %+v, want id/attempt copied from %+v", got, r)
	}
	if len(got.Args) != 2 || got.Args[0] != "--date" {
		t.Errorf("runSpec().Args = %v, want overrides carried through", got.Args)
	}
	if got.SparkConfOverrides["spark.sql.shuffle.partitions"] != "64" {
		t.Errorf("runSpec().SparkConfOverrides = %v, want conf overrides carried through", got.SparkConfOverrides)
	}
}
