package customers

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
	ErrNotFound      = errors.New("customer not found")
	ErrAlreadyExists = errors.New("customer already exists")
	ErrInUse         = errors.New("customer in use")
)

// Repository persists customers scoped by organization.
type Repository interface {
	Get(ctx context.Context, orgID, id int64) (*Customer, error)
	GetByCode(ctx context.Context, orgID int64, code string) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, c Customer) error
	Delete(ctx context.Context, orgID, id int64) error
	GenerateCode(ctx context.Context, orgID int64) (string, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const customerSelect = `SELECT c.id, c.organization_id, c.code, c.full_name, c.email, c.phone, c.national_id, c.address,
       c.zone_id, COALESCE(z.name, ''), c.notes, c.is_active, COALESCE(c.created_by, 0), c.created_at, c.updated_at
FROM customers c
LEFT JOIN zones z ON z.id = c.zone_id`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Code, &c.FullName, &c.Email, &c.Phone, &c.NationalID, &c.Address,
		&c.ZoneID, &c.ZoneName, &c.Notes, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, customerSelect+` WHERE c.organization_id = $1 AND c.id = $2`, orgID, id))
}

func (r *repository) GetByCode(ctx context.Context, orgID int64, code string) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, customerSelect+` WHERE c.organization_id = $1 AND c.code = $2`, orgID, code))
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	conditions := []string{"c.organization_id = $1"}
	args := []any{req.OrganizationID}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		conditions = append(conditions, fmt.Sprintf("c.is_active = $%d", len(args)))
	}
	if req.ZoneID != nil {
		args = append(args, *req.ZoneID)
		conditions = append(conditions, fmt.Sprintf("c.zone_id = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(c.code ILIKE $%d OR c.full_name ILIKE $%d OR c.email ILIKE $%d)", n, n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers c"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, customerSelect+where+fmt.Sprintf(" ORDER BY c.code LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var createdBy *int64
	if c.CreatedBy > 0 {
		createdBy = &c.CreatedBy
	}
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customers
  (organization_id, code, full_name, email, phone, national_id, address, zone_id, notes, is_active, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		c.OrganizationID, c.Code, c.FullName, c.Email, c.Phone, c.NationalID, c.Address, c.ZoneID, c.Notes, c.IsActive, createdBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: customer code %s already exists", ErrAlreadyExists, c.Code)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET code = $3, full_name = $4, email = $5, phone = $6, national_id = $7,
  address = $8, zone_id = $9, notes = $10, is_active = $11, updated_at = NOW()
WHERE organization_id = $1 AND id = $2`,
		c.OrganizationID, c.ID, c.Code, c.FullName, c.Email, c.Phone, c.NationalID, c.Address, c.ZoneID, c.Notes, c.IsActive)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: customer code %s already exists", ErrAlreadyExists, c.Code)
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
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE organization_id = $1 AND id = $2`, orgID, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: customer has deals or bookings", ErrInUse)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GenerateCode suggests the next code. The unique index settles races on insert.
func (r *repository) GenerateCode(ctx context.Context, orgID int64) (string, error) {
	var next int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(NULLIF(regexp_replace(code, '\D', '', 'g'), '')::bigint), 0) + 1
FROM customers WHERE organization_id = $1 AND code LIKE 'CUST-%'`, orgID).Scan(&next)
	if err != nil {
		return "", err
	}
	return FormatCode(next), nil
}

// FormatCode renders a customer code such as CUST-00042.
func FormatCode(n int64) string {
	return fmt.Sprintf("CUST-%05d", n)
}
