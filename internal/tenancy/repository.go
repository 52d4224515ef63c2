package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
)

var (
	ErrNotFound    = errors.New("organization not found")
	ErrInvalidName = errors.New("organization name has no usable characters")
)

// Repository persists organizations.
type Repository interface {
	Get(ctx context.Context, id int64) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Create(ctx context.Context, org Organization) (int64, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const orgSelect = `SELECT id, name, slug, locale, currency, created_at FROM organizations`

func (r *repository) scan(row pgx.Row) (*Organization, error) {
	var o Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Locale, &o.Currency, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Organization, error) {
	return r.scan(r.db.QueryRow(ctx, orgSelect+` WHERE id = $1`, id))
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return r.scan(r.db.QueryRow(ctx, orgSelect+` WHERE slug = $1`, slug))
}

func (r *repository) Create(ctx context.Context, org Organization) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO organizations (name, slug, locale, currency)
VALUES ($1, $2, $3, $4)
ON CONFLICT (slug) DO UPDATE SET name = organizations.name
RETURNING id`, org.Name, org.Slug, org.Locale, org.Currency).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert organization: %w", err)
	}
	return id, nil
}
