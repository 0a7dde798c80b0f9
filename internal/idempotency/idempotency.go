// Package idempotency implements the (scope, key) idempotent-request guard:
// a canonical-JSON SHA-256 fingerprint ties a request body to a key, and the
// first call's response is replayed verbatim for any later call reusing the
// same key with an unchanged body. A call reusing the key with a changed
// body is a conflict.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshmcq/sparkpilot/internal/apierror"
	"github.com/joshmcq/sparkpilot/internal/telemetry"
)

// Fingerprint computes the canonical-JSON SHA-256 fingerprint of payload.
// Round-tripping through a generic interface{} normalizes map key order,
// since encoding/json already sorts map[string]interface{} keys and uses
// compact separators.
func Fingerprint(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("normalizing payload: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("marshaling canonical payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Result is what Execute returns: either a fresh response or a replay of a
// prior one.
type Result struct {
	StatusCode   int
	Body         json.RawMessage
	Replayed     bool
	ResourceType string
	ResourceID   uuid.UUID
}

// Outcome is what the wrapped operation returns to Execute.
type Outcome struct {
	StatusCode   int
	Body         any
	ResourceType string
	ResourceID   uuid.UUID
}

// Guard enforces idempotent execution against the idempotency_records table.
type Guard struct {
	Pool *pgxpool.Pool
}

// Execute runs fn exactly once per (scope, key, fingerprint): the very first
// call for a key executes fn inside a transaction and persists both the
// entity change fn makes and the idempotency record atomically; any later
// call with the same (scope, key) and an unchanged body replays the stored
// response without calling fn again. A later call with the same key and a
// different body returns apierror.IdempotencyKeyReuse.
func (g *Guard) Execute(ctx context.Context, scope, key string, payload any, fn func(ctx context.Context, tx pgx.Tx) (Outcome, error)) (Result, error) {
	fingerprint, err := Fingerprint(payload)
	if err != nil {
		return Result{}, fmt.Errorf("computing idempotency fingerprint: %w", err)
	}

	tx, err := g.Pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("beginning idempotency transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		existingFingerprint string
		existingStatus      int
		existingBody        json.RawMessage
		existingResType     string
		existingResID       uuid.UUID
	)
	err = tx.QueryRow(ctx, `
		SELECT fingerprint, status_code, response_json, resource_type, resource_id
		FROM idempotency_records
		WHERE scope = $1 AND key = $2
		FOR UPDATE`,
		scope, key,
	).Scan(&existingFingerprint, &existingStatus, &existingBody, &existingResType, &existingResID)

	switch {
	case err == nil:
		if existingFingerprint != fingerprint {
			return Result{}, apierror.IdempotencyKeyReuse("idempotency key %q already used with a different request body", key)
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return Result{}, fmt.Errorf("committing idempotency replay: %w", commitErr)
		}
		telemetry.IdempotentReplaysTotal.Inc()
		return Result{
			StatusCode:   existingStatus,
			Body:         existingBody,
			Replayed:     true,
			ResourceType: existingResType,
			ResourceID:   existingResID,
		}, nil

	case errors.Is(err, pgx.ErrNoRows):
		// First time this key has been seen — fall through and execute.

	default:
		return Result{}, fmt.Errorf("looking up idempotency record: %w", err)
	}

	outcome, err := fn(ctx, tx)
	if err != nil {
		return Result{}, err
	}

	bodyJSON, err := json.Marshal(outcome.Body)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling response body: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO idempotency_records (scope, key, fingerprint, status_code, response_json, resource_type, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		scope, key, fingerprint, outcome.StatusCode, bodyJSON, outcome.ResourceType, outcome.ResourceID,
	)
	if err != nil {
		return Result{}, fmt.Errorf("persisting idempotency record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("committing idempotent operation: %w", err)
	}

	return Result{
		StatusCode:   outcome.StatusCode,
		Body:         bodyJSON,
		Replayed:     false,
		ResourceType: outcome.ResourceType,
		ResourceID:   outcome.ResourceID,
	}, nil
}
