package cars

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
	ErrNotFound      = errors.New("car not found")
	ErrAlreadyExists = errors.New("car already exists")
	ErrInUse         = errors.New("car in use")
	ErrInvalidStatus = errors.New("invalid car status")
	ErrInvalidInput  = errors.New("invalid car")
)

func statusChanged(now Status) error {
	return fmt.Errorf("%w: the car was set to %s in the meantime, reload and try again", ErrInvalidStatus, strings.ToLower(string(now)))
}

// Repository persists cars scoped by organization.
type Repository interface {
	Get(ctx context.Context, orgID, id int64) (*Car, error)
	GetByVIN(ctx context.Context, orgID int64, vin string) (*Car, error)
	List(ctx context.Context, req ListCarsRequest) ([]Car, int, error)
	Create(ctx context.Context, car Car) (int64, error)
	Update(ctx context.Context, car Car, from Status) error
	Delete(ctx context.Context, orgID, id int64) error
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const carSelect = `SELECT c.id, c.organization_id, c.zone_id, COALESCE(z.name, ''), c.vin, c.make, c.model, c.year,
       c.color, c.mileage, c.price, c.status, c.notes, c.created_at, c.updated_at
FROM cars c
LEFT JOIN zones z ON z.id = c.zone_id`

func scanCar(row pgx.Row) (*Car, error) {
	var c Car
	err := row.Scan(&c.ID, &c.OrganizationID, &c.ZoneID, &c.ZoneName, &c.VIN, &c.Make, &c.Model, &c.Year,
		&c.Color, &c.Mileage, &c.Price, &c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Car, error) {
	return scanCar(r.db.QueryRow(ctx, carSelect+` WHERE c.organization_id = $1 AND c.id = $2`, orgID, id))
}

func (r *repository) GetByVIN(ctx context.Context, orgID int64, vin string) (*Car, error) {
	return scanCar(r.db.QueryRow(ctx, carSelect+` WHERE c.organization_id = $1 AND c.vin = $2`, orgID, vin))
}

func (r *repository) List(ctx context.Context, req ListCarsRequest) ([]Car, int, error) {
	conditions := []string{"c.organization_id = $1"}
	args := []any{req.OrganizationID}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if req.ZoneID != nil {
		args = append(args, *req.ZoneID)
		conditions = append(conditions, fmt.Sprintf("c.zone_id = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(c.vin ILIKE $%d OR c.make ILIKE $%d OR c.model ILIKE $%d)", n, n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM cars c"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, carSelect+where+fmt.Sprintf(" ORDER BY c.created_at DESC, c.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Car
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Car) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO cars
  (organization_id, zone_id, vin, make, model, year, color, mileage, price, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		c.OrganizationID, c.ZoneID, c.VIN, c.Make, c.Model, c.Year, c.Color, c.Mileage, c.Price, c.Status, c.Notes).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: VIN %s is already registered", ErrAlreadyExists, c.VIN)
	}
	return id, err
}

// Update writes the car only while its stored status is still from.
func (r *repository) Update(ctx context.Context, c Car, from Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE cars SET zone_id = $3, vin = $4, make = $5, model = $6, year = $7, color = $8,
  mileage = $9, price = $10, status = $11, notes = $12, updated_at = NOW()
WHERE organization_id = $1 AND id = $2 AND status = $13`,
		c.OrganizationID, c.ID, c.ZoneID, c.VIN, c.Make, c.Model, c.Year, c.Color, c.Mileage, c.Price, c.Status, c.Notes, from)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: VIN %s is already registered", ErrAlreadyExists, c.VIN)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var status Status
		err := r.db.QueryRow(ctx, `SELECT status FROM cars WHERE organization_id = $1 AND id = $2`, c.OrganizationID, c.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return statusChanged(status)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cars WHERE organization_id = $1 AND id = $2`, orgID, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: car is referenced by a deal", ErrInUse)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
