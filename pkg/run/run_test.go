package run

import "testing"

func TestRequestedResources_Normalized_Defaults(t *testing.T) {
	got := RequestedResources{}.Normalized()

	if got.DriverVCPU != 1 {
		t.Errorf("DriverVCPU = %d, want 1", got.DriverVCPU)
	}
	if got.DriverMemoryGB != 4 {
		t.Errorf("DriverMemoryGB = %d, want 4", got.DriverMemoryGB)
	}
	if got.ExecutorVCPU != 2 {
		t.Errorf("ExecutorVCPU = %d, want 2", got.ExecutorVCPU)
	}
	if got.ExecutorMemoryGB != 8 {
		t.Errorf("ExecutorMemoryGB = %d, want 8", got.ExecutorMemoryGB)
	}
	if got.ExecutorInstances != 0 {
		t.Errorf("ExecutorInstances = %d, want 0 (driver-only runs stay legitimate)", got.ExecutorInstances)
	}
}

func TestRequestedResources_Normalized_PreservesOverrides(t *testing.T) {
	r := RequestedResources{DriverVCPU: 2, ExecutorVCPU: 4, ExecutorInstances: 3}
	got := r.Normalized()

	if got.DriverVCPU != 2 {
		t.Errorf("DriverVCPU = %d, want 2", got.DriverVCPU)
	}
	if got.ExecutorVCPU != 4 {
		t.Errorf("ExecutorVCPU = %d, want 4", got.ExecutorVCPU)
	}
	if got.ExecutorInstances != 3 {
		t.Errorf("ExecutorInstances = %d, want 3", got.ExecutorInstances)
	}
}

func TestRequestedResources_TotalVCPU(t *testing.T) {
	r := RequestedResources{DriverVCPU: 1, ExecutorVCPU: 2, ExecutorInstances: 2}
	if got := r.TotalVCPU(); got != 5 {
		t.Errorf("TotalVCPU() = %d, want 5", got)
	}
}

func TestRequestedResources_TotalMemoryGB(t *testing.T) {
	r := RequestedResources{DriverMemoryGB: 4, ExecutorMemoryGB: 8, ExecutorInstances: 2}
	if got := r.TotalMemoryGB(); got != 20 {
		t.Errorf("TotalMemoryGB() = %d, want 20", got)
	}
}

func TestRow_ToResponse_NilSlicesBecomeEmpty(t *testing.T) {
	row := Row{State: StateQueued}
	resp := row.ToResponse()
	if resp.Args == nil {
		t.Error("Args should not be nil in response")
	}
	if resp.SparkConf == nil {
		t.Error("SparkConf should not be nil in response")
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []string{StateSucceeded, StateFailed, StateCancelled, StateTimedOut} {
		if !TerminalStates[s] {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []string{StateQueued, StateDispatching, StateAccepted, StateRunning} {
		if TerminalStates[s] {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestActiveStates_MatchesAdmissionSet(t *testing.T) {
	for _, s := range []string{StateQueued, StateDispatching, StateAccepted, StateRunning} {
		if !ActiveStates[s] {
			t.Errorf("%s should count against quota", s)
		}
	}
	for _, s := range []string{StateSucceeded, StateFailed, StateCancelled, StateTimedOut} {
		if ActiveStates[s] {
			t.Errorf("%s should not count against quota", s)
		}
	}
}
