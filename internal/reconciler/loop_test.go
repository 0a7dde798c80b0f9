package reconciler

import (
	"encoding/json"
	"testing"

	"github.com/joshmcq/sparkpilot/internal/engine"
	"github.com/joshmcq/sparkpilot/pkg/run"
)

// Full integration (a real active run mirrored against an engine adapter)
// requires a database; this is a unit-level smoke test of the pure
// engine-state mapping and audit-detail helper reconcileOne builds on.

func TestEngineToPlatformState_CoversEveryEngineState(t *testing.T) {
	known := []string{
		engine.EngineStatePending,
		engine.EngineStateSubmitted,
		engine.EngineStateRunning,
		engine.EngineStateCompleted,
		engine.EngineStateFailed,
		engine.EngineStateCancelled,
		engine.EngineStateCancelPending,
	}
	for _, state := range known {
		if _, ok := engineToPlatformState[state]; !ok {
			t.Errorf("engineToPlatformState missing mapping for %q", state)
		}
	}
}

func TestEngineToPlatformState_MapsPerSpec(t *testing.T) {
	tests := []struct {
		engineState string
		want        string
	}{
		{engine.EngineStatePending, run.StateAccepted},
		{engine.EngineStateSubmitted, run.StateAccepted},
		{engine.EngineStateRunning, run.StateRunning},
		{engine.EngineStateCompleted, run.StateSucceeded},
		{engine.EngineStateFailed, run.StateFailed},
		{engine.EngineStateCancelled, run.StateCancelled},
		{engine.EngineStateCancelPending, run.StateRunning},
	}
	for _, tt := range tests {
		if got := engineToPlatformState[tt.engineState]; got != tt.want {
			t.Errorf("engineToPlatformState[%q] = %q, want %q", tt.engineState, got, tt.want)
		}
	}
}

func TestEngineToPlatformState_UnknownStateIsAbsent(t *testing.T) {
	if _, ok := engineToPlatformState["SOMETHING_NEW"]; ok {
		t.Error("an unrecognized engine state should not have a map entry; reconcileOne falls back to failed and audits it")
	}
}

func TestMustJSON_MarshalsCleanly(t *testing.T) {
	raw := mustJSON(map[string]string{"emr_state": "RUNNING", "state": run.StateRunning})

	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("mustJSON produced invalid JSON: %v", err)
	}
	if decoded["emr_state"] != "RUNNING" || decoded["state"] != run.StateRunning {
		t.Errorf("mustJSON round-trip = %v, want emr_state/state preserved", decoded)
	}
}
