package spaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
)

// Space is one client workspace
type Space struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrDuplicateName indicates the tenant already has a space with that name
var ErrDuplicateName = errors.New("a space with that name already exists")

// Service creates and lists client spaces under quota governance
type Service struct {
	db       *sql.DB
	governor *quota.Governor
}

// NewService creates a Service
func NewService(db *sql.DB, governor *quota.Governor) *Service {
	return &Service{db: db, governor: governor}
}

// Create inserts a new space if the tenant is under its plan ceiling. The
// live count is taken with the tenant's counter row locked, so two
// concurrent creates serialize and the second sees the first's insert.
func (s *Service) Create(ctx context.Context, tenantID int64, name string) (*Space, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize concurrent creates for the same tenant.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1, $2)`, advisoryNamespace, tenantID); err != nil {
		return nil, fmt.Errorf("failed to lock tenant spaces: %w", err)
	}

	var count int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM client_spaces WHERE tenant_id = $1 AND NOT archived`,
		tenantID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to count spaces: %w", err)
	}

	if err := s.governor.CheckCeiling(ctx, tenantID, plans.ResourceClientSpaces, count); err != nil {
		return nil, err
	}

	space := &Space{TenantID: tenantID, Name: name}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO client_spaces (tenant_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, tenantID, name).Scan(&space.ID, &space.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create space: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit space creation: %w", err)
	}

	// The mirror counter is best effort; the authoritative count above is
	// taken from client_spaces itself.
	_ = s.governor.RecordUsage(ctx, tenantID, plans.ResourceClientSpaces, 1)

	return space, nil
}

// Archive soft-deletes a space and releases its slot under the ceiling
func (s *Service) Archive(ctx context.Context, tenantID, spaceID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE client_spaces SET archived = TRUE
		WHERE id = $1 AND tenant_id = $2 AND NOT archived
	`, spaceID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to archive space: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read archive result: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return s.governor.RecordUsage(ctx, tenantID, plans.ResourceClientSpaces, -1)
}

// List returns the tenant's active spaces
func (s *Service) List(ctx context.Context, tenantID int64) ([]*Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, archived, created_at
		FROM client_spaces
		WHERE tenant_id = $1 AND NOT archived
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	var out []*Space
	for rows.Next() {
		space := &Space{}
		if err := rows.Scan(&space.ID, &space.TenantID, &space.Name, &space.Archived, &space.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		out = append(out, space)
	}
	return out, rows.Err()
}

// advisoryNamespace scopes this service's advisory locks
const advisoryNamespace = 7201

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
