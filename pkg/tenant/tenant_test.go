package tenant

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRow_ToResponse(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()
	row := Row{ID: id, Name: "acme", CreatedAt: now, UpdatedAt: now}

	resp := row.ToResponse()
	if resp.ID != id {
		t.Errorf("ID = %v, want %v", resp.ID, id)
	}
	if resp.Name != "acme" {
		t.Errorf("Name = %q, want %q", resp.Name, "acme")
	}
}
