package provisioner

import (
	"testing"

	"github.com/joshmcq/sparkpilot/pkg/environment"
)

// Full integration (a real pending operation walking to ready/failed)
// requires a database; these are unit-level smoke tests of the pure
// helpers provisionOne/provisionFull/provisionBYOCLite build on.

func TestStepMessage_AllKnownSteps(t *testing.T) {
	for _, step := range environment.ProvisioningSteps {
		if msg := stepMessage(step); msg == "" || msg == "Provisioning." {
			t.Errorf("stepMessage(%q) = %q, want a step-specific message", step, msg)
		}
	}
}

func TestStepMessage_UnknownStepFallsBack(t *testing.T) {
	if got := stepMessage("nonsense"); got != "Provisioning." {
		t.Errorf("stepMessage(unknown) = %q, want generic fallback", got)
	}
}

func TestPtr(t *testing.T) {
	p := ptr("hello")
	if p == nil || *p != "hello" {
		t.Fatalf("ptr(%q) = %v, want pointer to the same string", "hello", p)
	}
}
