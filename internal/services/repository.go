package services

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
	ErrNotFound = errors.New("service not found")
	ErrInUse    = errors.New("service in use")
)

// Repository persists the service catalog.
type Repository interface {
	Get(ctx context.Context, orgID, id int64) (*Service, error)
	GetMany(ctx context.Context, orgID int64, ids []int64) (map[int64]Service, error)
	List(ctx context.Context, req ListServicesRequest) ([]Service, int, error)
	Create(ctx context.Context, s Service) (int64, error)
	Update(ctx context.Context, s Service) error
	Delete(ctx context.Context, orgID, id int64) error
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const serviceColumns = `id, organization_id, name, category, provider_name, provider_email, unit_price, unit_cost, is_active, created_at, updated_at`

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Category, &s.ProviderName, &s.ProviderEmail,
		&s.UnitPrice, &s.UnitCost, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Service, error) {
	return scanService(r.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE organization_id = $1 AND id = $2`, orgID, id))
}

func (r *repository) GetMany(ctx context.Context, orgID int64, ids []int64) (map[int64]Service, error) {
	rows, err := r.db.Query(ctx, `SELECT `+serviceColumns+` FROM services WHERE organization_id = $1 AND id = ANY($2)`, orgID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Service, len(ids))
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out[s.ID] = *s
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListServicesRequest) ([]Service, int, error) {
	conditions := []string{"organization_id = $1"}
	args := []any{req.OrganizationID}
	if req.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	if req.Category != "" {
		args = append(args, req.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR provider_name ILIKE $%d)", n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM services"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+serviceColumns+` FROM services`+where+fmt.Sprintf(" ORDER BY category, name LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, s Service) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO services
  (organization_id, name, category, provider_name, provider_email, unit_price, unit_cost, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		s.OrganizationID, s.Name, s.Category, s.ProviderName, s.ProviderEmail, s.UnitPrice, s.UnitCost, s.IsActive).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, s Service) error {
	tag, err := r.db.Exec(ctx, `UPDATE services SET name = $3, category = $4, provider_name = $5, provider_email = $6,
  unit_price = $7, unit_cost = $8, is_active = $9, updated_at = NOW()
WHERE organization_id = $1 AND id = $2`,
		s.OrganizationID, s.ID, s.Name, s.Category, s.ProviderName, s.ProviderEmail, s.UnitPrice, s.UnitCost, s.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE organization_id = $1 AND id = $2`, orgID, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: service is used by bookings, deactivate it instead", ErrInUse)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
