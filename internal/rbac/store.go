package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
)

// Store is the persistence boundary of the rbac service.
type Store interface {
	ListRoles(ctx context.Context, orgID int64) ([]Role, error)
	RoleByName(ctx context.Context, orgID int64, name string) (Role, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	EnsureRole(ctx context.Context, orgID int64, name, description string, permissions []string) (Role, error)
	ReplaceUserRole(ctx context.Context, userID, roleID int64) error
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	UserRoles(ctx context.Context, userID int64) ([]string, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListRoles returns the roles of an organization with their permission names.
func (s *PGStore) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.id, r.organization_id, r.name, r.description, r.created_at,
       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE r.organization_id = $1
GROUP BY r.id
ORDER BY r.name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Description, &role.CreatedAt, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RoleByName fetches a role of an organization.
func (s *PGStore) RoleByName(ctx context.Context, orgID int64, name string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT id, organization_id, name, description, created_at
FROM roles WHERE organization_id = $1 AND name = $2`, orgID, name).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// EnsurePermission upserts a permission by name.
func (s *PGStore) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := s.pool.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, name, description).Scan(&p.ID, &p.Name, &p.Description)
	return p, err
}

// EnsureRole upserts a role and replaces its permission set.
func (s *PGStore) EnsureRole(ctx context.Context, orgID int64, name, description string, permissions []string) (Role, error) {
	var role Role
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO roles (organization_id, name, description) VALUES ($1, $2, $3)
ON CONFLICT (organization_id, name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, organization_id, name, description, created_at`, orgID, name, description).
			Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Description, &role.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert role: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, id FROM permissions WHERE name = ANY($2)`, role.ID, permissions); err != nil {
			return fmt.Errorf("attach permissions: %w", err)
		}
		role.Permissions = permissions
		return nil
	})
	return role, err
}

// ReplaceUserRole makes roleID the only role of the user.
func (s *PGStore) ReplaceUserRole(ctx context.Context, userID, roleID int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
		return err
	})
}

// UserPermissions returns the distinct permission names granted to a user.
func (s *PGStore) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UserRoles returns role names of a user.
func (s *PGStore) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var _ Store = (*PGStore)(nil)
