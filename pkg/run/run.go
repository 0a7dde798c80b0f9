// Package run implements the Run entity: one submission of a Job, tracked
// through dispatch to EMR on EKS and on to a terminal state.
package run

import (
	"time"

	"github.com/google/uuid"
)

// Run states, mirroring the platform's run lifecycle.
const (
	StateQueued      = "queued"
	StateDispatching = "dispatching"
	StateAccepted    = "accepted"
	StateRunning     = "running"
	StateSucceeded   = "succeeded"
	StateFailed      = "failed"
	StateCancelled   = "cancelled"
	StateTimedOut    = "timed_out"
)

// TerminalStates are the states a run never leaves once reached.
var TerminalStates = map[string]bool{
	StateSucceeded: true,
	StateFailed:    true,
	StateCancelled: true,
	StateTimedOut:  true,
}

// ActiveStates are the states that count against an environment's quota.
var ActiveStates = map[string]bool{
	StateQueued:      true,
	StateDispatching: true,
	StateAccepted:    true,
	StateRunning:     true,
}

// RequestedResources describes the driver/executor shape a run asks for.
type RequestedResources struct {
	DriverVCPU        int `json:"driver_vcpu"`
	DriverMemoryGB    int `json:"driver_memory_gb"`
	ExecutorVCPU      int `json:"executor_vcpu"`
	ExecutorMemoryGB  int `json:"executor_memory_gb"`
	ExecutorInstances int `json:"executor_instances"`
}

// Normalized fills in the schema's defaults for any zero-valued field. The
// schema distinguishes "not set" from an explicit 0 only for
// executor_instances, which is legitimately allowed to be 0 (a
// driver-only run); every other field's floor is 1, so a 0 there means unset.
func (r RequestedResources) Normalized() RequestedResources {
	if r.DriverVCPU == 0 {
		r.DriverVCPU = 1
	}
	if r.DriverMemoryGB == 0 {
		r.DriverMemoryGB = 4
	}
	if r.ExecutorVCPU == 0 {
		r.ExecutorVCPU = 2
	}
	if r.ExecutorMemoryGB == 0 {
		r.ExecutorMemoryGB = 8
	}
	return r
}

// TotalVCPU returns the total vCPU footprint of driver plus all executors.
func (r RequestedResources) TotalVCPU() int {
	return r.DriverVCPU + (r.ExecutorVCPU * r.ExecutorInstances)
}

// TotalMemoryGB returns the total memory footprint of driver plus all
// executors.
func (r RequestedResources) TotalMemoryGB() int {
	return r.DriverMemoryGB + (r.ExecutorMemoryGB * r.ExecutorInstances)
}

// Row is the raw database representation of a run.
type Row struct {
	ID                       uuid.UUID
	JobID                    uuid.UUID
	EnvironmentID            uuid.UUID
	State                    string
	Attempt                  int
	IdempotencyKey           string
	RequestedResources       RequestedResources
	ArgsOverrides            []string
	SparkConfOverrides       map[string]string
	TimeoutSeconds           int
	EMRJobRunID              *string
	CancellationRequested    bool
	LogGroup                 *string
	LogStreamPrefix          *string
	DriverLogURI             *string
	SparkUIURI               *string
	ErrorMessage             *string
	StartedAt                *time.Time
	EndedAt                  *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Response is the JSON-facing representation of a run.
type Response struct {
	ID                    uuid.UUID           `json:"id"`
	JobID                 uuid.UUID           `json:"job_id"`
	EnvironmentID         uuid.UUID           `json:"environment_id"`
	State                 string              `json:"state"`
	Attempt               int                 `json:"attempt"`
	RequestedResources    RequestedResources  `json:"requested_resources"`
	Args                  []string            `json:"args"`
	SparkConf             map[string]string   `json:"spark_conf"`
	TimeoutSeconds        int                 `json:"timeout_seconds"`
	EMRJobRunID           *string             `json:"emr_job_run_id"`
	CancellationRequested bool                `json:"cancellation_requested"`
	LogGroup              *string             `json:"log_group"`
	LogStreamPrefix       *string             `json:"log_stream_prefix"`
	DriverLogURI          *string             `json:"driver_log_uri"`
	SparkUIURI            *string             `json:"spark_ui_uri"`
	ErrorMessage          *string             `json:"error_message"`
	StartedAt             *time.Time          `json:"started_at"`
	EndedAt               *time.Time          `json:"ended_at"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func (r Row) ToResponse() Response {
	args := r.ArgsOverrides
	if args == nil {
		args = []string{}
	}
	conf := r.SparkConfOverrides
	if conf == nil {
		conf = map[string]string{}
	}
	return Response{
		ID:                    r.ID,
		JobID:                 r.JobID,
		EnvironmentID:         r.EnvironmentID,
		State:                 r.State,
		Attempt:               r.Attempt,
		RequestedResources:    r.RequestedResources,
		Args:                  args,
		SparkConf:             conf,
		TimeoutSeconds:        r.TimeoutSeconds,
		EMRJobRunID:           r.EMRJobRunID,
		CancellationRequested: r.CancellationRequested,
		LogGroup:              r.LogGroup,
		LogStreamPrefix:       r.LogStreamPrefix,
		DriverLogURI:          r.DriverLogURI,
		SparkUIURI:            r.SparkUIURI,
		ErrorMessage:          r.ErrorMessage,
		StartedAt:             r.StartedAt,
		EndedAt:               r.EndedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// CreateRequest is the body of POST /v1/jobs/{job_id}/runs.
type CreateRequest struct {
	Args               []string            `json:"args"`
	SparkConf          map[string]string   `json:"spark_conf"`
	RequestedResources RequestedResources  `json:"requested_resources"`
	TimeoutSeconds     int                 `json:"timeout_seconds" validate:"omitempty,min=60,max=172800"`
}

// LogsResponse is the body of GET /v1/runs/{run_id}/logs.
type LogsResponse struct {
	RunID           uuid.UUID `json:"run_id"`
	LogGroup        *string   `json:"log_group"`
	LogStreamPrefix *string   `json:"log_stream_prefix"`
	Lines           []string  `json:"lines"`
}
