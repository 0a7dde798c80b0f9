// Package tenant implements the Tenant entity: the top-level billing and
// isolation boundary every Environment, Job, Run, and UsageRecord belongs
// to.
package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Row is the raw database representation of a tenant.
type Row struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Response is the JSON-facing representation returned by the API.
type Response struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToResponse converts a Row to its API Response.
func (r Row) ToResponse() Response {
	return Response{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateRequest is the body of POST /v1/tenants.
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=3,max=255"`
}
