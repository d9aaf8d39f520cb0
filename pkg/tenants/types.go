package tenants

import (
	"context"
	"errors"
	"time"
)

// Status represents tenant status
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Tenant represents a customer organization
type Tenant struct {
	ID int64 `json:"id"`
	// ExternalID is the identity-provider tenant id. Unique; the join key
	// used by billing event metadata.
	ExternalID  string    `json:"external_id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Placeholder bool      `json:"placeholder"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrNotFound indicates the tenant does not exist
var ErrNotFound = errors.New("tenant not found")

// Service defines the interface for tenant management
type Service interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetByExternalID(ctx context.Context, externalID string) (*Tenant, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	List(ctx context.Context, limit int) ([]*Tenant, error)

	// EnsurePlaceholder finds the tenant by external id, creating a minimal
	// placeholder row when none exists. Idempotent.
	EnsurePlaceholder(ctx context.Context, externalID string) (*Tenant, error)
}
