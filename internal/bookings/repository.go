package bookings

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
	ErrNotFound         = errors.New("booking not found")
	ErrAlreadyResponded = errors.New("service already responded")
	ErrInvalidState     = errors.New("invalid booking state")
	ErrInvalidInput     = errors.New("invalid booking")
)

// DocPrefix prefixes booking numbers, e.g. BK-202603-0007.
const DocPrefix = "BK"

// Repository persists bookings and their service lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, orgID, id int64) (*Booking, error)
	List(ctx context.Context, req ListBookingsRequest) ([]Booking, int, error)
	Create(ctx context.Context, b Booking) (int64, error)
	UpdateHeader(ctx context.Context, b Booking) error
	InsertLine(ctx context.Context, line BookingService) (int64, error)
	DeleteLine(ctx context.Context, bookingID, lineID int64) error
	DeleteLines(ctx context.Context, bookingID int64) error
	LockBooking(ctx context.Context, orgID, id int64) (*Booking, error)
	LineBooking(ctx context.Context, orgID, lineID int64) (int64, error)
	LockLine(ctx context.Context, lineID int64) (*BookingService, error)
	Lines(ctx context.Context, bookingID int64) ([]BookingService, error)
	SetLineDecision(ctx context.Context, lineID int64, status LineStatus, note *string, at time.Time) error
	SetStatus(ctx context.Context, orgID, id int64, status Status) error
	MarkRequested(ctx context.Context, bookingID int64, at time.Time) error
	ClaimConfirmation(ctx context.Context, bookingID int64, at time.Time) (bool, error)
	ReleaseConfirmation(ctx context.Context, bookingID int64) error
	CustomerExists(ctx context.Context, orgID, customerID int64) (bool, error)
	NextDocNumber(ctx context.Context, orgID int64, at time.Time) (string, error)
	RecordIncome(ctx context.Context, tx revenue.Transaction) (bool, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
	Contact(ctx context.Context, orgID, bookingID int64) (*Contact, error)
	StaleLines(ctx context.Context, before time.Time, limit int) ([]StaleLine, error)
	MarkReminded(ctx context.Context, lineID int64, at time.Time) error
	Unnotified(ctx context.Context, limit int) ([]SettledBooking, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. Callers lock the booking row first so
// the line aggregate read after the lock sees every answer committed before it.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		repoTx := &repository{db: tx, pool: r.pool}
		return fn(ctx, repoTx)
	})
}

const bookingSelect = `SELECT b.id, b.organization_id, b.doc_number, b.customer_id, cu.full_name, cu.email,
       b.trip_start, b.trip_end, b.pax, b.status, b.notes, b.requested_at, b.confirmation_sent_at,
       b.created_by, b.created_at, b.updated_at
FROM bookings b
JOIN customers cu ON cu.id = b.customer_id`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.OrganizationID, &b.DocNumber, &b.CustomerID, &b.CustomerName, &b.CustomerEmail,
		&b.TripStart, &b.TripEnd, &b.Pax, &b.Status, &b.Notes, &b.RequestedAt, &b.ConfirmationSentAt,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (*Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, bookingSelect+` WHERE b.organization_id = $1 AND b.id = $2`, orgID, id))
	if err != nil {
		return nil, err
	}
	b.Services, err = r.Lines(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repository) List(ctx context.Context, req ListBookingsRequest) ([]Booking, int, error) {
	conditions := []string{"b.organization_id = $1"}
	args := []any{req.OrganizationID}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(b.doc_number ILIKE $%d OR cu.full_name ILIKE $%d)", n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings b JOIN customers cu ON cu.id = b.customer_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, bookingSelect+where+fmt.Sprintf(" ORDER BY b.trip_start DESC, b.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, b Booking) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO bookings
  (organization_id, doc_number, customer_id, trip_start, trip_end, pax, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		b.OrganizationID, b.DocNumber, b.CustomerID, b.TripStart, b.TripEnd, b.Pax, b.Status, b.Notes, b.CreatedBy).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return 0, fmt.Errorf("%w: customer does not exist", ErrInvalidInput)
	}
	return id, err
}

func (r *repository) UpdateHeader(ctx context.Context, b Booking) error {
	tag, err := r.db.Exec(ctx, `UPDATE bookings SET customer_id = $3, trip_start = $4, trip_end = $5, pax = $6,
       notes = $7, updated_at = NOW()
WHERE organization_id = $1 AND id = $2`,
		b.OrganizationID, b.ID, b.CustomerID, b.TripStart, b.TripEnd, b.Pax, b.Notes)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: customer does not exist", ErrInvalidInput)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertLine(ctx context.Context, l BookingService) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO booking_services
  (booking_id, service_id, service_name, provider_email, quantity, unit_price, unit_cost, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING') RETURNING id`,
		l.BookingID, l.ServiceID, l.ServiceName, l.ProviderEmail, l.Quantity, l.UnitPrice, l.UnitCost).Scan(&id)
	return id, err
}

func (r *repository) DeleteLine(ctx context.Context, bookingID, lineID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM booking_services WHERE booking_id = $1 AND id = $2`, bookingID, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: service line not found", ErrNotFound)
	}
	return nil
}

func (r *repository) DeleteLines(ctx context.Context, bookingID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM booking_services WHERE booking_id = $1`, bookingID)
	return err
}

func (r *repository) LockBooking(ctx context.Context, orgID, id int64) (*Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, bookingSelect+` WHERE b.organization_id = $1 AND b.id = $2 FOR UPDATE OF b`, orgID, id))
}

func (r *repository) LineBooking(ctx context.Context, orgID, lineID int64) (int64, error) {
	var bookingID int64
	err := r.db.QueryRow(ctx, `SELECT bs.booking_id FROM booking_services bs
JOIN bookings b ON b.id = bs.booking_id
WHERE b.organization_id = $1 AND bs.id = $2`, orgID, lineID).Scan(&bookingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: booking service %d", ErrNotFound, lineID)
	}
	return bookingID, err
}

const lineSelect = `SELECT bs.id, bs.booking_id, bs.service_id, bs.service_name, COALESCE(s.provider_name, ''), bs.provider_email,
       bs.quantity, bs.unit_price, bs.unit_cost, bs.status, bs.response_note, bs.responded_at, bs.requested_at,
       bs.reminded_at, bs.created_at
FROM booking_services bs
LEFT JOIN services s ON s.id = bs.service_id`

func scanLine(row pgx.Row) (*BookingService, error) {
	var l BookingService
	err := row.Scan(&l.ID, &l.BookingID, &l.ServiceID, &l.ServiceName, &l.ProviderName, &l.ProviderEmail,
		&l.Quantity, &l.UnitPrice, &l.UnitCost, &l.Status, &l.ResponseNote, &l.RespondedAt, &l.RequestedAt,
		&l.RemindedAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: service line not found", ErrNotFound)
		}
		return nil, err
	}
	return &l, nil
}

func (r *repository) LockLine(ctx context.Context, lineID int64) (*BookingService, error) {
	return scanLine(r.db.QueryRow(ctx, lineSelect+` WHERE bs.id = $1 FOR UPDATE OF bs`, lineID))
}

func (r *repository) Lines(ctx context.Context, bookingID int64) ([]BookingService, error) {
	rows, err := r.db.Query(ctx, lineSelect+` WHERE bs.booking_id = $1 ORDER BY bs.id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingService
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *repository) SetLineDecision(ctx context.Context, lineID int64, status LineStatus, note *string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE booking_services SET status = $2, response_note = $3, responded_at = $4 WHERE id = $1`,
		lineID, status, note, at)
	return err
}

func (r *repository) SetStatus(ctx context.Context, orgID, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE bookings SET status = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRequested opens a new request round: the confirmation claim is cleared and
// pending lines restart their reminder clock.
func (r *repository) MarkRequested(ctx context.Context, bookingID int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE bookings SET requested_at = $2, confirmation_sent_at = NULL, updated_at = NOW() WHERE id = $1`,
		bookingID, at); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `UPDATE booking_services SET requested_at = $2, reminded_at = NULL WHERE booking_id = $1 AND status = 'PENDING'`,
		bookingID, at)
	return err
}

func (r *repository) ClaimConfirmation(ctx context.Context, bookingID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE bookings SET confirmation_sent_at = $2 WHERE id = $1 AND confirmation_sent_at IS NULL`,
		bookingID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) ReleaseConfirmation(ctx context.Context, bookingID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE bookings SET confirmation_sent_at = NULL WHERE id = $1`, bookingID)
	return err
}

func (r *repository) CustomerExists(ctx context.Context, orgID, customerID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE organization_id = $1 AND id = $2 AND is_active)`,
		orgID, customerID).Scan(&exists)
	return exists, err
}

func (r *repository) NextDocNumber(ctx context.Context, orgID int64, at time.Time) (string, error) {
	return shared.NextDocNumber(ctx, r.db, orgID, DocPrefix, at)
}

func (r *repository) RecordIncome(ctx context.Context, tx revenue.Transaction) (bool, error) {
	return revenue.RecordIncome(ctx, r.db, tx)
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.db, log)
}

func (r *repository) Contact(ctx context.Context, orgID, bookingID int64) (*Contact, error) {
	var c Contact
	err := r.db.QueryRow(ctx, `SELECT o.name, o.locale, cu.full_name, cu.email, cu.code, cu.phone, cu.address
FROM bookings b
JOIN organizations o ON o.id = b.organization_id
JOIN customers cu ON cu.id = b.customer_id
WHERE b.organization_id = $1 AND b.id = $2`, orgID, bookingID).Scan(
		&c.Organization, &c.Locale, &c.CustomerName, &c.CustomerEmail, &c.CustomerCode, &c.Phone, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Unnotified(ctx context.Context, limit int) ([]SettledBooking, error) {
	rows, err := r.db.Query(ctx, `SELECT organization_id, id FROM bookings
WHERE status IN ('CONFIRMED', 'NEEDS_ATTENTION') AND confirmation_sent_at IS NULL
ORDER BY updated_at
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SettledBooking
	for rows.Next() {
		var b SettledBooking
		if err := rows.Scan(&b.OrganizationID, &b.BookingID); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) StaleLines(ctx context.Context, before time.Time, limit int) ([]StaleLine, error) {
	rows, err := r.db.Query(ctx, `SELECT b.organization_id, b.id, bs.id
FROM booking_services bs
JOIN bookings b ON b.id = bs.booking_id
WHERE b.status = 'REQUESTED' AND bs.status = 'PENDING'
  AND COALESCE(bs.reminded_at, bs.requested_at) < $1
ORDER BY COALESCE(bs.reminded_at, bs.requested_at)
LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StaleLine
	for rows.Next() {
		var s StaleLine
		if err := rows.Scan(&s.OrganizationID, &s.BookingID, &s.LineID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) MarkReminded(ctx context.Context, lineID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE booking_services SET reminded_at = $2 WHERE id = $1`, lineID, at)
	return err
}
