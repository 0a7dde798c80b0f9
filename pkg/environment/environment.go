// Package environment implements the Environment entity: a tenant's
// provisioned Spark-on-EKS/EMR runtime, and the ProvisioningOperation that
// tracks bringing one up. Grounded on the tenant package's Row/Response split.
package environment

import (
	"time"

	"github.com/google/uuid"
)

// Row is the raw database representation of an environment.
type Row struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Cloud               string
	Region              string
	Engine              string
	ProvisioningMode    string
	Status              string
	CustomerRoleARN     string
	EKSClusterARN       *string
	EKSNamespace        *string
	EMRVirtualClusterID *string
	WarmPoolEnabled     bool
	MaxConcurrentRuns   int
	MaxVCPU             int
	MaxRunSeconds       int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Response is the JSON-facing representation of an environment.
type Response struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            uuid.UUID `json:"tenant_id"`
	Cloud               string    `json:"cloud"`
	Region              string    `json:"region"`
	Engine              string    `json:"engine"`
	ProvisioningMode    string    `json:"provisioning_mode"`
	Status              string    `json:"status"`
	CustomerRoleARN     string    `json:"customer_role_arn"`
	EKSClusterARN       *string   `json:"eks_cluster_arn"`
	EKSNamespace        *string   `json:"eks_namespace"`
	EMRVirtualClusterID *string   `json:"emr_virtual_cluster_id"`
	WarmPoolEnabled     bool      `json:"warm_pool_enabled"`
	MaxConcurrentRuns   int       `json:"max_concurrent_runs"`
	MaxVCPU             int       `json:"max_vcpu"`
	MaxRunSeconds       int       `json:"max_run_seconds"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (r Row) ToResponse() Response {
	return Response{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		Cloud:               r.Cloud,
		Region:              r.Region,
		Engine:              r.Engine,
		ProvisioningMode:    r.ProvisioningMode,
		Status:              r.Status,
		CustomerRoleARN:     r.CustomerRoleARN,
		EKSClusterARN:       r.EKSClusterARN,
		EKSNamespace:        r.EKSNamespace,
		EMRVirtualClusterID: r.EMRVirtualClusterID,
		WarmPoolEnabled:     r.WarmPoolEnabled,
		MaxConcurrentRuns:   r.MaxConcurrentRuns,
		MaxVCPU:             r.MaxVCPU,
		MaxRunSeconds:       r.MaxRunSeconds,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// QuotasRequest is the optional quota override block on an environment
// creation request.
type QuotasRequest struct {
	MaxConcurrentRuns int `json:"max_concurrent_runs" validate:"omitempty,min=1,max=1000"`
	MaxVCPU           int `json:"max_vcpu" validate:"omitempty,min=1,max=20000"`
	MaxRunSeconds     int `json:"max_run_seconds" validate:"omitempty,min=60,max=172800"`
}

// CreateRequest is the body of POST /v1/environments.
type CreateRequest struct {
	TenantID         uuid.UUID     `json:"tenant_id" validate:"required"`
	ProvisioningMode string        `json:"provisioning_mode" validate:"omitempty,oneof=full byoc_lite"`
	Region           string        `json:"region"`
	CustomerRoleARN  string        `json:"customer_role_arn" validate:"required"`
	EKSClusterARN    *string       `json:"eks_cluster_arn"`
	EKSNamespace     *string       `json:"eks_namespace" validate:"omitempty,max=255"`
	WarmPoolEnabled  bool          `json:"warm_pool_enabled"`
	Quotas           QuotasRequest `json:"quotas"`
}

// normalized returns req with its zero-value defaults filled in.
func (req CreateRequest) normalized() CreateRequest {
	if req.ProvisioningMode == "" {
		req.ProvisioningMode = "full"
	}
	if req.Region == "" {
		req.Region = "us-east-1"
	}
	if req.Quotas.MaxConcurrentRuns == 0 {
		req.Quotas.MaxConcurrentRuns = 10
	}
	if req.Quotas.MaxVCPU == 0 {
		req.Quotas.MaxVCPU = 256
	}
	if req.Quotas.MaxRunSeconds == 0 {
		req.Quotas.MaxRunSeconds = 7200
	}
	return req
}

// ProvisioningStep constants, in the order the full provisioning mode walks
// them.
const (
	StepValidatingBootstrap = "validating_bootstrap"
	StepProvisioningNetwork = "provisioning_network"
	StepProvisioningEKS     = "provisioning_eks"
	StepProvisioningEMR     = "provisioning_emr"
	StepValidatingRuntime   = "validating_runtime"
	StepQueued              = "queued"
	StepReady               = "ready"
	StepFailed              = "failed"
)

// ProvisioningSteps is the ordered full-mode provisioning walk.
var ProvisioningSteps = []string{
	StepValidatingBootstrap,
	StepProvisioningNetwork,
	StepProvisioningEKS,
	StepProvisioningEMR,
	StepValidatingRuntime,
}

// KnownGoodVPCEndpoints lists the VPC endpoints a full provisioning pass
// validates reachability for, recorded on the completion audit event.
var KnownGoodVPCEndpoints = []string{
	"ec2", "ecr.api", "ecr.dkr", "s3", "logs", "sts", "eks", "eks-auth", "elasticloadbalancing",
}

// OperationRow is the raw database representation of a ProvisioningOperation.
type OperationRow struct {
	ID              uuid.UUID
	EnvironmentID   uuid.UUID
	State           string
	Step            string
	Message         *string
	LogsURI         *string
	IdempotencyKey  string
	StartedAt       time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OperationResponse is the JSON-facing representation of a
// ProvisioningOperation.
type OperationResponse struct {
	ID            uuid.UUID  `json:"id"`
	EnvironmentID uuid.UUID  `json:"environment_id"`
	State         string     `json:"state"`
	Step          string     `json:"step"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	Message       *string    `json:"message"`
	LogsURI       *string    `json:"logs_uri"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (r OperationRow) ToResponse() OperationResponse {
	return OperationResponse{
		ID:            r.ID,
		EnvironmentID: r.EnvironmentID,
		State:         r.State,
		Step:          r.Step,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		Message:       r.Message,
		LogsURI:       r.LogsURI,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
