package tenants

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// Create creates a new tenant
func (s *PostgresService) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.Status == "" {
		tenant.Status = StatusActive
	}

	query := `
		INSERT INTO tenants (external_id, name, status, placeholder)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		tenant.ExternalID, tenant.Name, tenant.Status, tenant.Placeholder).
		Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by ID
func (s *PostgresService) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

// GetByExternalID retrieves a tenant by its identity-provider tenant id
func (s *PostgresService) GetByExternalID(ctx context.Context, externalID string) (*Tenant, error) {
	return s.getOne(ctx, `WHERE external_id = $1`, externalID)
}

func (s *PostgresService) getOne(ctx context.Context, where string, arg interface{}) (*Tenant, error) {
	query := `
		SELECT id, external_id, name, status, placeholder, created_at, updated_at
		FROM tenants
	` + where

	tenant := &Tenant{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&tenant.ID, &tenant.ExternalID, &tenant.Name, &tenant.Status,
		&tenant.Placeholder, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// SetStatus flips the tenant status. Tenants are never deleted.
func (s *PostgresService) SetStatus(ctx context.Context, id int64, status Status) error {
	query := `UPDATE tenants SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns tenants ordered by creation time
func (s *PostgresService) List(ctx context.Context, limit int) ([]*Tenant, error) {
	query := `
		SELECT id, external_id, name, status, placeholder, created_at, updated_at
		FROM tenants
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		tenant := &Tenant{}
		if err := rows.Scan(
			&tenant.ID, &tenant.ExternalID, &tenant.Name, &tenant.Status,
			&tenant.Placeholder, &tenant.CreatedAt, &tenant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, tenant)
	}

	return out, rows.Err()
}

// EnsurePlaceholder finds the tenant by external id, creating a minimal
// placeholder row when none exists. A concurrent create of the same external
// id is absorbed by ON CONFLICT, so redelivered checkout events are safe.
func (s *PostgresService) EnsurePlaceholder(ctx context.Context, externalID string) (*Tenant, error) {
	tenant, err := s.GetByExternalID(ctx, externalID)
	if err == nil {
		return tenant, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	name := "pending-" + uuid.NewString()[:8]
	query := `
		INSERT INTO tenants (external_id, name, status, placeholder)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (external_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, external_id, name, status, placeholder, created_at, updated_at
	`
	tenant = &Tenant{}
	err = s.db.QueryRowContext(ctx, query, externalID, name, StatusActive).Scan(
		&tenant.ID, &tenant.ExternalID, &tenant.Name, &tenant.Status,
		&tenant.Placeholder, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to provision placeholder tenant: %w", err)
	}

	return tenant, nil
}
