package revenue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
)

var (
	ErrNotFound  = errors.New("transaction not found")
	ErrProtected = errors.New("transaction is protected")
)

// Repository reads and writes the transaction ledger.
type Repository interface {
	List(ctx context.Context, req ListTransactionsRequest) ([]Transaction, int, error)
	Between(ctx context.Context, orgID int64, from, to time.Time) ([]Transaction, error)
	AcceptedLines(ctx context.Context, orgID int64, from, to time.Time) ([]BilledLine, error)
	Get(ctx context.Context, orgID, id int64) (*Transaction, error)
	Create(ctx context.Context, t Transaction) (int64, error)
	Delete(ctx context.Context, orgID, id int64) error
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const transactionSelect = `SELECT t.id, t.organization_id, t.kind, t.source, t.ref_id, t.service_id, COALESCE(s.name, ''),
       t.amount, t.occurred_on, t.description, COALESCE(t.created_by, 0), t.created_at
FROM transactions t
LEFT JOIN services s ON s.id = t.service_id`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Kind, &t.Source, &t.RefID, &t.ServiceID, &t.ServiceName,
		&t.Amount, &t.OccurredOn, &t.Description, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListTransactionsRequest) ([]Transaction, int, error) {
	conditions := []string{"t.organization_id = $1"}
	args := []any{req.OrganizationID}
	if !req.From.IsZero() {
		args = append(args, req.From)
		conditions = append(conditions, fmt.Sprintf("t.occurred_on >= $%d", len(args)))
	}
	if !req.To.IsZero() {
		args = append(args, req.To)
		conditions = append(conditions, fmt.Sprintf("t.occurred_on <= $%d", len(args)))
	}
	if req.Kind != "" {
		args = append(args, req.Kind)
		conditions = append(conditions, fmt.Sprintf("t.kind = $%d", len(args)))
	}
	if req.Source != "" {
		args = append(args, req.Source)
		conditions = append(conditions, fmt.Sprintf("t.source = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions t"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, transactionSelect+where+fmt.Sprintf(" ORDER BY t.occurred_on DESC, t.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

func (r *repository) Between(ctx context.Context, orgID int64, from, to time.Time) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, transactionSelect+` WHERE t.organization_id = $1 AND t.occurred_on BETWEEN $2 AND $3`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// AcceptedLines returns accepted lines of confirmed bookings whose trip starts in range.
func (r *repository) AcceptedLines(ctx context.Context, orgID int64, from, to time.Time) ([]BilledLine, error) {
	rows, err := r.db.Query(ctx, `SELECT bs.booking_id, bs.service_id, bs.service_name, bs.quantity, bs.unit_price, bs.unit_cost
FROM booking_services bs
JOIN bookings b ON b.id = bs.booking_id
WHERE b.organization_id = $1 AND b.status = 'CONFIRMED' AND bs.status = 'ACCEPTED'
  AND b.trip_start BETWEEN $2 AND $3`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BilledLine
	for rows.Next() {
		var l BilledLine
		if err := rows.Scan(&l.BookingID, &l.ServiceID, &l.Name, &l.Quantity, &l.UnitPrice, &l.UnitCost); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, transactionSelect+` WHERE t.organization_id = $1 AND t.id = $2`, orgID, id))
}

func (r *repository) Create(ctx context.Context, t Transaction) (int64, error) {
	var createdBy *int64
	if t.CreatedBy > 0 {
		createdBy = &t.CreatedBy
	}
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO transactions
  (organization_id, kind, source, ref_id, service_id, amount, occurred_on, description, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		t.OrganizationID, t.Kind, t.Source, t.RefID, t.ServiceID, t.Amount, t.OccurredOn, t.Description, createdBy).Scan(&id)
	return id, err
}

func (r *repository) Delete(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordIncome writes the INCOME transaction of a deal or booking through q, usually
// the transaction that changed its status. It reports false when the source already
// has one.
func RecordIncome(ctx context.Context, q db.DBTX, t Transaction) (bool, error) {
	if t.RefID == nil {
		return false, errors.New("record income: ref id required")
	}
	if !t.Amount.IsPositive() {
		return false, nil
	}
	var createdBy *int64
	if t.CreatedBy > 0 {
		createdBy = &t.CreatedBy
	}
	tag, err := q.Exec(ctx, `INSERT INTO transactions
  (organization_id, kind, source, ref_id, amount, occurred_on, description, created_by)
VALUES ($1, 'INCOME', $2, $3, $4, $5, $6, $7)
ON CONFLICT (organization_id, source, ref_id) WHERE ref_id IS NOT NULL AND source IN ('DEAL','BOOKING') DO NOTHING`,
		t.OrganizationID, t.Source, *t.RefID, t.Amount, t.OccurredOn, t.Description, createdBy)
	if err != nil {
		return false, fmt.Errorf("record %s income: %w", strings.ToLower(string(t.Source)), err)
	}
	return tag.RowsAffected() == 1, nil
}
