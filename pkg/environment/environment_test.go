package environment

import (
	"testing"
)

func TestCreateRequest_Normalized_Defaults(t *testing.T) {
	req := CreateRequest{}
	got := req.normalized()

	if got.ProvisioningMode != "full" {
		t.Errorf("ProvisioningMode = %q, want %q", got.ProvisioningMode, "full")
	}
	if got.Region != "us-east-1" {
		t.Errorf("Region = %q, want %q", got.Region, "us-east-1")
	}
	if got.Quotas.MaxConcurrentRuns != 10 {
		t.Errorf("MaxConcurrentRuns = %d, want 10", got.Quotas.MaxConcurrentRuns)
	}
	if got.Quotas.MaxVCPU != 256 {
		t.Errorf("MaxVCPU = %d, want 256", got.Quotas.MaxVCPU)
	}
	if got.Quotas.MaxRunSeconds != 7200 {
		t.Errorf("MaxRunSeconds = %d, want 7200", got.Quotas.MaxRunSeconds)
	}
}

func TestCreateRequest_Normalized_PreservesOverrides(t *testing.T) {
	req := CreateRequest{Region: "eu-west-1", ProvisioningMode: "byoc_lite"}
	got := req.normalized()

	if got.Region != "eu-west-1" {
		t.Errorf("Region = %q, want %q", got.Region, "eu-west-1")
	}
	if got.ProvisioningMode != "byoc_lite" {
		t.Errorf("ProvisioningMode = %q, want %q", got.ProvisioningMode, "byoc_lite")
	}
}

func TestRow_ToResponse(t *testing.T) {
	row := Row{Cloud: "aws", Region: "us-east-1", Engine: "spark", Status: "ready"}
	resp := row.ToResponse()
	if resp.Cloud != "aws" || resp.Region != "us-east-1" || resp.Engine != "spark" || resp.Status != "ready" {
		t.Errorf("ToResponse mismatched fields: %+v", resp)
	}
}
