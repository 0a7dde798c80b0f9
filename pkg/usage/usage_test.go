package usage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestComputed_Formula(t *testing.T) {
	tenantID, envID, runID := uuid.New(), uuid.New(), uuid.New()
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ended := started.Add(5 * time.Minute)
	rates := Rates{VCPUSecondMicros: 35, MemoryGBSecondMicros: 4}

	row := computed(tenantID, envID, runID, started, ended, 5, 20, rates)

	if row.DurationSeconds != 300 {
		t.Errorf("DurationSeconds = %d, want 300", row.DurationSeconds)
	}
	if row.VCPUSeconds != 1500 {
		t.Errorf("VCPUSeconds = %d, want 1500", row.VCPUSeconds)
	}
	if row.MemoryGBSeconds != 6000 {
		t.Errorf("MemoryGBSeconds = %d, want 6000", row.MemoryGBSeconds)
	}
	wantCost := int64(1500*35 + 6000*4)
	if row.EstimatedCostUSDMicros != wantCost {
		t.Errorf("EstimatedCostUSDMicros = %d, want %d", row.EstimatedCostUSDMicros, wantCost)
	}
}

func TestComputed_NegativeDurationClampsToZero(t *testing.T) {
	tenantID, envID, runID := uuid.New(), uuid.New(), uuid.New()
	ended := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	started := ended.Add(5 * time.Minute)
	rates := Rates{VCPUSecondMicros: 35, MemoryGBSecondMicros: 4}

	row := computed(tenantID, envID, runID, started, ended, 5, 20, rates)

	if row.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %d, want 0 for an ended_at before started_at", row.DurationSeconds)
	}
	if row.EstimatedCostUSDMicros != 0 {
		t.Errorf("EstimatedCostUSDMicros = %d, want 0", row.EstimatedCostUSDMicros)
	}
}

func TestComputed_ZeroDurationIsZeroCost(t *testing.T) {
	tenantID, envID, runID := uuid.New(), uuid.New(), uuid.New()
	moment := time.Now().UTC()
	rates := Rates{VCPUSecondMicros: 35, MemoryGBSecondMicros: 4}

	row := computed(tenantID, envID, runID, moment, moment, 5, 20, rates)

	if row.VCPUSeconds != 0 || row.MemoryGBSeconds != 0 || row.EstimatedCostUSDMicros != 0 {
		t.Errorf("zero-duration run should cost nothing, got %+v", row)
	}
}
