package audit

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestCallerFromRequest_DefaultsToAnonymous(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/environments", nil)
	if got := CallerFromRequest(r).Actor; got != "anonymous" {
		t.Errorf("CallerFromRequest(r).Actor = %q, want %q", got, "anonymous")
	}
}

func TestCallerFromRequest_UsesActorHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/environments", nil)
	r.Header.Set("X-Actor", "jane@example.com")
	if got := CallerFromRequest(r).Actor; got != "jane@example.com" {
		t.Errorf("CallerFromRequest(r).Actor = %q, want %q", got, "jane@example.com")
	}
}

func TestEvent_ZeroValueHasNoDetails(t *testing.T) {
	e := Event{
		TenantID:   uuid.New(),
		Action:     "environment.provisioned",
		EntityType: "environment",
		EntityID:   uuid.New().String(),
		Actor:      "anonymous",
	}
	if e.Details != nil {
		t.Fatalf("expected nil Details in zero-value event, Write supplies the {} default")
	}
}
