package deals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
	"github.com/motorcrm/motorcrm/internal/revenue"
	"github.com/motorcrm/motorcrm/internal/shared"
)

var (
	ErrNotFound          = errors.New("deal not found")
	ErrInvalidTransition = errors.New("invalid deal transition")
	ErrCarUnavailable    = errors.New("car unavailable")
	ErrInvalidInput      = errors.New("invalid deal")
)

// DocPrefix prefixes deal numbers, e.g. DEAL-202603-0001.
const DocPrefix = "DEAL"

// Repository persists deals and the car state they drive.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, orgID, id int64) (*Deal, error)
	GetForUpdate(ctx context.Context, orgID, id int64) (*Deal, error)
	List(ctx context.Context, req ListDealsRequest) ([]Deal, int, error)
	Create(ctx context.Context, deal Deal) (int64, error)
	Update(ctx context.Context, deal Deal) error
	SetStatus(ctx context.Context, orgID, id int64, status Status, at time.Time) error
	CustomerExists(ctx context.Context, orgID, customerID int64) (bool, error)
	LockCar(ctx context.Context, orgID, carID int64) (*CarState, error)
	SetCarStatus(ctx context.Context, orgID, carID int64, status string) error
	NextDocNumber(ctx context.Context, orgID int64, at time.Time) (string, error)
	RecordIncome(ctx context.Context, tx revenue.Transaction) (bool, error)
	ContractParties(ctx context.Context, orgID, id int64) (*ContractParties, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		repoTx := &repository{db: tx, pool: r.pool}
		return fn(ctx, repoTx)
	})
}

const dealSelect = `SELECT d.id, d.organization_id, d.doc_number, d.customer_id, cu.code, cu.full_name,
       d.car_id, c.make || ' ' || c.model || ' ' || c.year, c.vin, d.zone_id, COALESCE(z.name, ''),
       d.sale_price, d.down_payment, d.status, d.terms, d.signed_at, d.completed_at, d.created_by,
       d.created_at, d.updated_at
FROM deals d
JOIN customers cu ON cu.id = d.customer_id
JOIN cars c ON c.id = d.car_id
LEFT JOIN zones z ON z.id = d.zone_id`

func scanDeal(row pgx.Row) (*Deal, error) {
	var d Deal
	err := row.Scan(&d.ID, &d.OrganizationID, &d.DocNumber, &d.CustomerID, &d.CustomerCode, &d.CustomerName,
		&d.CarID, &d.CarLabel, &d.VIN, &d.ZoneID, &d.ZoneName,
		&d.SalePrice, &d.DownPayment, &d.Status, &d.Terms, &d.SignedAt, &d.CompletedAt, &d.CreatedBy,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Deal, error) {
	return scanDeal(r.db.QueryRow(ctx, dealSelect+` WHERE d.organization_id = $1 AND d.id = $2`, orgID, id))
}

func (r *repository) GetForUpdate(ctx context.Context, orgID, id int64) (*Deal, error) {
	return scanDeal(r.db.QueryRow(ctx, dealSelect+` WHERE d.organization_id = $1 AND d.id = $2 FOR UPDATE OF d`, orgID, id))
}

func (r *repository) List(ctx context.Context, req ListDealsRequest) ([]Deal, int, error) {
	conditions := []string{"d.organization_id = $1"}
	args := []any{req.OrganizationID}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("d.status = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(d.doc_number ILIKE $%d OR cu.full_name ILIKE $%d OR c.vin ILIKE $%d)", n, n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	countSQL := `SELECT COUNT(*) FROM deals d JOIN customers cu ON cu.id = d.customer_id JOIN cars c ON c.id = d.car_id` + where
	if err := r.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, dealSelect+where+fmt.Sprintf(" ORDER BY d.created_at DESC, d.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, d Deal) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO deals
  (organization_id, doc_number, customer_id, car_id, zone_id, sale_price, down_payment, status, terms, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		d.OrganizationID, d.DocNumber, d.CustomerID, d.CarID, d.ZoneID, d.SalePrice, d.DownPayment, d.Status, d.Terms, d.CreatedBy).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return 0, fmt.Errorf("%w: customer, car or zone does not exist", ErrInvalidInput)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, d Deal) error {
	tag, err := r.db.Exec(ctx, `UPDATE deals SET customer_id = $3, zone_id = $4, sale_price = $5, down_payment = $6,
       terms = $7, updated_at = NOW()
WHERE organization_id = $1 AND id = $2`,
		d.OrganizationID, d.ID, d.CustomerID, d.ZoneID, d.SalePrice, d.DownPayment, d.Terms)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: customer or zone does not exist", ErrInvalidInput)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, orgID, id int64, status Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE deals SET status = $3,
       signed_at = CASE WHEN $3 = 'SIGNED' THEN $4 ELSE signed_at END,
       completed_at = CASE WHEN $3 = 'COMPLETED' THEN $4 ELSE completed_at END,
       updated_at = NOW()
WHERE organization_id = $1 AND id = $2`, orgID, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CustomerExists(ctx context.Context, orgID, customerID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE organization_id = $1 AND id = $2 AND is_active)`,
		orgID, customerID).Scan(&exists)
	return exists, err
}

func (r *repository) LockCar(ctx context.Context, orgID, carID int64) (*CarState, error) {
	var c CarState
	err := r.db.QueryRow(ctx, `SELECT id, status, zone_id, price FROM cars WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
		orgID, carID).Scan(&c.ID, &c.Status, &c.ZoneID, &c.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: car not found", ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) SetCarStatus(ctx context.Context, orgID, carID int64, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE cars SET status = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, carID, status)
	return err
}

func (r *repository) NextDocNumber(ctx context.Context, orgID int64, at time.Time) (string, error) {
	return shared.NextDocNumber(ctx, r.db, orgID, DocPrefix, at)
}

func (r *repository) RecordIncome(ctx context.Context, tx revenue.Transaction) (bool, error) {
	return revenue.RecordIncome(ctx, r.db, tx)
}

func (r *repository) ContractParties(ctx context.Context, orgID, id int64) (*ContractParties, error) {
	var p ContractParties
	err := r.db.QueryRow(ctx, `SELECT o.name, o.locale, cu.code, cu.full_name, cu.email, cu.phone, cu.address, cu.national_id,
       c.year, c.mileage
FROM deals d
JOIN organizations o ON o.id = d.organization_id
JOIN customers cu ON cu.id = d.customer_id
JOIN cars c ON c.id = d.car_id
WHERE d.organization_id = $1 AND d.id = $2`, orgID, id).Scan(
		&p.Organization, &p.Locale, &p.CustomerCode, &p.FullName, &p.Email, &p.Phone, &p.Address, &p.NationalID,
		&p.Year, &p.Mileage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
