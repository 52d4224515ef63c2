package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
)

// Repository counts the records shown on the dashboard tiles.
type Repository interface {
	CountCustomers(ctx context.Context, orgID int64) (int, error)
	CountAvailableCars(ctx context.Context, orgID int64) (int, error)
	CountOpenDeals(ctx context.Context, orgID int64) (int, error)
	CountPendingBookings(ctx context.Context, orgID int64) (int, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) count(ctx context.Context, query string, orgID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, query, orgID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repository) CountCustomers(ctx context.Context, orgID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM customers WHERE organization_id = $1 AND is_active`, orgID)
}

func (r *repository) CountAvailableCars(ctx context.Context, orgID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM cars WHERE organization_id = $1 AND status = 'AVAILABLE'`, orgID)
}

func (r *repository) CountOpenDeals(ctx context.Context, orgID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM deals WHERE organization_id = $1 AND status IN ('DRAFT','SIGNED')`, orgID)
}

func (r *repository) CountPendingBookings(ctx context.Context, orgID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bookings WHERE organization_id = $1 AND status IN ('REQUESTED','NEEDS_ATTENTION')`, orgID)
}
