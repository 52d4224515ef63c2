package zones

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
	ErrNotFound      = errors.New("zone not found")
	ErrAlreadyExists = errors.New("zone already exists")
	ErrInUse         = errors.New("zone in use")
)

// Repository persists zones. Every method is scoped by organization.
type Repository interface {
	Get(ctx context.Context, orgID, id int64) (*Zone, error)
	GetByCode(ctx context.Context, orgID int64, code string) (*Zone, error)
	List(ctx context.Context, req ListZonesRequest) ([]Zone, int, error)
	ListActive(ctx context.Context, orgID int64) ([]Zone, error)
	Create(ctx context.Context, zone Zone) (int64, error)
	Update(ctx context.Context, zone Zone) error
	Delete(ctx context.Context, orgID, id int64) error
	CountReferences(ctx context.Context, orgID, id int64) (int, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const zoneColumns = `id, organization_id, code, name, description, is_active, created_at, updated_at`

func scanZone(row pgx.Row) (*Zone, error) {
	var z Zone
	if err := row.Scan(&z.ID, &z.OrganizationID, &z.Code, &z.Name, &z.Description, &z.IsActive, &z.CreatedAt, &z.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &z, nil
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Zone, error) {
	return scanZone(r.db.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE organization_id = $1 AND id = $2`, orgID, id))
}

func (r *repository) GetByCode(ctx context.Context, orgID int64, code string) (*Zone, error) {
	return scanZone(r.db.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE organization_id = $1 AND code = $2`, orgID, code))
}

func (r *repository) List(ctx context.Context, req ListZonesRequest) ([]Zone, int, error) {
	conditions := []string{"organization_id = $1"}
	args := []any{req.OrganizationID}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM zones "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, req.Limit, req.Offset)
	query := fmt.Sprintf(`SELECT %s FROM zones %s ORDER BY code LIMIT $%d OFFSET $%d`, zoneColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var zones []Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, 0, err
		}
		zones = append(zones, *z)
	}
	return zones, total, rows.Err()
}

func (r *repository) ListActive(ctx context.Context, orgID int64) ([]Zone, error) {
	active := true
	zones, _, err := r.List(ctx, ListZonesRequest{OrganizationID: orgID, IsActive: &active, Limit: 500})
	return zones, err
}

func (r *repository) Create(ctx context.Context, zone Zone) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO zones (organization_id, code, name, description, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		zone.OrganizationID, zone.Code, zone.Name, zone.Description, zone.IsActive).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: zone code %s already exists", ErrAlreadyExists, zone.Code)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, zone Zone) error {
	tag, err := r.db.Exec(ctx, `UPDATE zones SET code = $3, name = $4, description = $5, is_active = $6, updated_at = NOW()
WHERE organization_id = $1 AND id = $2`,
		zone.OrganizationID, zone.ID, zone.Code, zone.Name, zone.Description, zone.IsActive)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: zone code %s already exists", ErrAlreadyExists, zone.Code)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM zones WHERE organization_id = $1 AND id = $2`, orgID, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: zone is still referenced", ErrInUse)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CountReferences(ctx context.Context, orgID, id int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM customers WHERE organization_id = $1 AND zone_id = $2) +
  (SELECT COUNT(*) FROM cars WHERE organization_id = $1 AND zone_id = $2) +
  (SELECT COUNT(*) FROM deals WHERE organization_id = $1 AND zone_id = $2)`, orgID, id).Scan(&n)
	return n, err
}
