package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joshmcq/sparkpilot/internal/dbtx"
)

// Store performs raw queries against the tenants table.
type Store struct {
	DB dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store { return &Store{DB: db} }

// ByName returns the tenant with the given name, or pgx.ErrNoRows.
func (s *Store) ByName(ctx context.Context, name string) (Row, error) {
	return s.scanOne(ctx, `SELECT id, name, created_at, updated_at FROM tenants WHERE name = $1`, name)
}

// ByID returns the tenant with the given id, or pgx.ErrNoRows.
func (s *Store) ByID(ctx context.Context, id uuid.UUID) (Row, error) {
	return s.scanOne(ctx, `SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1`, id)
}

func (s *Store) scanOne(ctx context.Context, sql string, args ...any) (Row, error) {
	var r Row
	err := s.DB.QueryRow(ctx, sql, args...).Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, pgx.ErrNoRows
		}
		return Row{}, fmt.Errorf("querying tenant: %w", err)
	}
	return r, nil
}

// Insert creates a tenant row and returns it with its generated id and timestamps.
func (s *Store) Insert(ctx context.Context, name string) (Row, error) {
	var r Row
	err := s.DB.QueryRow(ctx, `
		INSERT INTO tenants (id, name, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, now(), now())
		RETURNING id, name, created_at, updated_at`,
		name,
	).Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Row{}, fmt.Errorf("inserting tenant: %w", err)
	}
	return r, nil
}
