// Package usage implements the UsageRecord entity: the one billing row a
// Run produces the moment it reaches a terminal state.
package usage

import (
	"time"

	"github.com/google/uuid"
)

// Rates carries the per-second unit prices used to cost a run, expressed in
// micros of USD. The control plane loads these from config
// (USAGE_VCPU_SECOND_RATE / USAGE_MEMORY_GB_SECOND_RATE) rather than baking
// them in, so pricing can change without a redeploy of the recorder logic.
type Rates struct {
	VCPUSecondMicros   float64
	MemoryGBSecondMicros float64
}

// Row is the raw database representation of a usage record.
type Row struct {
	ID                     uuid.UUID
	TenantID               uuid.UUID
	EnvironmentID          uuid.UUID
	RunID                  uuid.UUID
	DurationSeconds        int64
	TotalVCPU              int
	TotalMemoryGB          int
	VCPUSeconds            int64
	MemoryGBSeconds        int64
	EstimatedCostUSDMicros int64
	CreatedAt              time.Time
}

// Response is the JSON-facing representation of a usage record.
type Response struct {
	ID                     uuid.UUID `json:"id"`
	TenantID               uuid.UUID `json:"tenant_id"`
	EnvironmentID          uuid.UUID `json:"environment_id"`
	RunID                  uuid.UUID `json:"run_id"`
	DurationSeconds        int64     `json:"duration_seconds"`
	TotalVCPU              int       `json:"total_vcpu"`
	TotalMemoryGB          int       `json:"total_memory_gb"`
	VCPUSeconds            int64     `json:"vcpu_seconds"`
	MemoryGBSeconds        int64     `json:"memory_gb_seconds"`
	EstimatedCostUSDMicros int64     `json:"estimated_cost_usd_micros"`
	CreatedAt              time.Time `json:"created_at"`
}

func (r Row) ToResponse() Response {
	return Response{
		ID:                     r.ID,
		TenantID:               r.TenantID,
		EnvironmentID:          r.EnvironmentID,
		RunID:                  r.RunID,
		DurationSeconds:        r.DurationSeconds,
		TotalVCPU:              r.TotalVCPU,
		TotalMemoryGB:          r.TotalMemoryGB,
		VCPUSeconds:            r.VCPUSeconds,
		MemoryGBSeconds:        r.MemoryGBSeconds,
		EstimatedCostUSDMicros: r.EstimatedCostUSDMicros,
		CreatedAt:              r.CreatedAt,
	}
}

// Summary is the body of GET /v1/usage: totals across the records in a
// tenant's window, plus the records themselves.
type Summary struct {
	TenantID               uuid.UUID  `json:"tenant_id"`
	From                   time.Time  `json:"from"`
	To                     time.Time  `json:"to"`
	TotalVCPUSeconds       int64      `json:"total_vcpu_seconds"`
	TotalMemoryGBSeconds   int64      `json:"total_memory_gb_seconds"`
	TotalEstimatedCostUSDMicros int64 `json:"total_estimated_cost_usd_micros"`
	Records                []Response `json:"records"`
}

// computed derives the billing figures for one run from its observed
// resource shape and wall-clock duration, per the published formula:
// duration = max(0, ended_at - started_at); total_vcpu = driver + executor*instances;
// vcpu_seconds = duration * total_vcpu; cost = vcpu_seconds*rate + memory_gb_seconds*rate.
func computed(tenantID, environmentID, runID uuid.UUID, startedAt, endedAt time.Time, totalVCPU, totalMemoryGB int, rates Rates) Row {
	duration := endedAt.Sub(startedAt)
	if duration < 0 {
		duration = 0
	}
	durationSeconds := int64(duration.Seconds())

	vcpuSeconds := durationSeconds * int64(totalVCPU)
	memoryGBSeconds := durationSeconds * int64(totalMemoryGB)
	cost := int64(float64(vcpuSeconds)*rates.VCPUSecondMicros + float64(memoryGBSeconds)*rates.MemoryGBSecondMicros)

	return Row{
		TenantID:               tenantID,
		EnvironmentID:          environmentID,
		RunID:                  runID,
		DurationSeconds:        durationSeconds,
		TotalVCPU:              totalVCPU,
		TotalMemoryGB:          totalMemoryGB,
		VCPUSeconds:            vcpuSeconds,
		MemoryGBSeconds:        memoryGBSeconds,
		EstimatedCostUSDMicros: cost,
	}
}
