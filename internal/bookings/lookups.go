package bookings

import (
	"context"

	"github.com/motorcrm/motorcrm/internal/customers"
	"github.com/motorcrm/motorcrm/internal/services"
)

// Lookups feeds the select boxes of the booking form.
type Lookups interface {
	Customers(ctx context.Context, orgID int64) ([]customers.Customer, error)
	Services(ctx context.Context, orgID int64) ([]services.Service, error)
}

type lookups struct {
	customers *customers.Service
	catalog   *services.Catalog
}

// NewLookups adapts the customer service and the catalog to Lookups.
func NewLookups(customerSvc *customers.Service, catalog *services.Catalog) Lookups {
	return lookups{customers: customerSvc, catalog: catalog}
}

func (l lookups) Customers(ctx context.Context, orgID int64) ([]customers.Customer, error) {
	return l.customers.Options(ctx, orgID)
}

func (l lookups) Services(ctx context.Context, orgID int64) ([]services.Service, error) {
	return l.catalog.Options(ctx, orgID)
}
