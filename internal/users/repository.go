package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailTaken  = errors.New("email already registered")
	ErrSelfChange  = errors.New("cannot change own account")
	ErrUnknownRole = errors.New("unknown role")
)

// Repository persists user accounts of an organization.
type Repository interface {
	List(ctx context.Context, orgID int64) ([]User, error)
	Get(ctx context.Context, orgID, id int64) (*User, error)
	Create(ctx context.Context, u User, passwordHash string) (int64, error)
	SetActive(ctx context.Context, orgID, id int64, active bool) error
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const userSelect = `SELECT u.id, u.organization_id, u.email, u.full_name, u.is_active, u.created_at, u.updated_at,
       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repository) List(ctx context.Context, orgID int64) ([]User, error) {
	rows, err := r.db.Query(ctx, userSelect+` WHERE u.organization_id = $1 GROUP BY u.id ORDER BY u.full_name, u.id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, userSelect+` WHERE u.organization_id = $1 AND u.id = $2 GROUP BY u.id`, orgID, id))
}

func (r *repository) Create(ctx context.Context, u User, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO users (organization_id, email, full_name, password_hash, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		u.OrganizationID, strings.ToLower(u.Email), u.FullName, passwordHash, u.IsActive).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s is already registered", ErrEmailTaken, u.Email)
	}
	return id, err
}

func (r *repository) SetActive(ctx context.Context, orgID, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_active = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`, orgID, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
