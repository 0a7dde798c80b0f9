package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/joshmcq/sparkpilot/internal/httpserver"
)

// Event represents one audit_events row. SparkPilot writes the audit event
// in the same transaction as the entity mutation it describes — an entity
// change and its audit trail either both commit or both roll back.
type Event struct {
	TenantID   uuid.UUID
	Actor      string
	Action     string
	SourceIP   string
	EntityType string
	EntityID   string
	Details    json.RawMessage
}

// Write inserts an audit event using tx, the same transaction the caller
// used to mutate the entity being described.
func Write(ctx context.Context, tx pgx.Tx, e Event) error {
	details := e.Details
	if details == nil {
		details = json.RawMessage(`{}`)
	}

	var sourceIP *string
	if e.SourceIP != "" {
		sourceIP = &e.SourceIP
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO audit_events (id, tenant_id, actor, action, source_ip, entity_type, entity_id, details_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		uuid.New(), nullableUUID(e.TenantID), e.Actor, e.Action, sourceIP, e.EntityType, e.EntityID, details,
	)
	if err != nil {
		return fmt.Errorf("writing audit event %s/%s: %w", e.EntityType, e.Action, err)
	}
	return nil
}

func nullableUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

// Caller bundles the advisory actor identity and source IP captured at the
// HTTP boundary, to be threaded through a service call into the Event it
// eventually writes.
type Caller struct {
	Actor    string
	SourceIP string
}

// CallerFromRequest captures the advisory actor identity and client IP for
// an audit event. SparkPilot has no identity federation (spec non-goal), so
// neither field is used for access control — both are bookkeeping only.
func CallerFromRequest(r *http.Request) Caller {
	caller := Caller{Actor: httpserver.Actor(r)}
	if ip := httpserver.ClientIP(r); ip.IsValid() {
		caller.SourceIP = ip.String()
	}
	return caller
}
