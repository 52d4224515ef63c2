package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/motorcrm/motorcrm/internal/revenue"
)

// Snapshot is the data behind the dashboard tiles.
type Snapshot struct {
	Customers       int
	AvailableCars   int
	OpenDeals       int
	PendingBookings int
	Revenue         revenue.RevenueSummary
}

// RevenuePort reads the ledger summary for a range.
type RevenuePort interface {
	Summary(ctx context.Context, orgID int64, rng revenue.Range, g revenue.Granularity) (revenue.RevenueSummary, error)
	CurrentMonth() revenue.Range
}

// Service assembles the dashboard.
type Service struct {
	repo    Repository
	revenue RevenuePort
}

// NewService constructs a Service.
func NewService(repo Repository, rev RevenuePort) *Service {
	return &Service{repo: repo, revenue: rev}
}

// Snapshot loads every tile concurrently. The first failure cancels the rest.
func (s *Service) Snapshot(ctx context.Context, orgID int64) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	counts := []struct {
		name string
		dst  *int
		fn   func(context.Context, int64) (int, error)
	}{
		{"customers", &snap.Customers, s.repo.CountCustomers},
		{"cars", &snap.AvailableCars, s.repo.CountAvailableCars},
		{"deals", &snap.OpenDeals, s.repo.CountOpenDeals},
		{"bookings", &snap.PendingBookings, s.repo.CountPendingBookings},
	}
	for _, c := range counts {
		g.Go(func() error {
			n, err := c.fn(ctx, orgID)
			if err != nil {
				return fmt.Errorf("count %s: %w", c.name, err)
			}
			*c.dst = n
			return nil
		})
	}

	if s.revenue != nil {
		g.Go(func() error {
			summary, err := s.revenue.Summary(ctx, orgID, s.revenue.CurrentMonth(), revenue.Month)
			if err != nil {
				return fmt.Errorf("revenue summary: %w", err)
			}
			snap.Revenue = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
