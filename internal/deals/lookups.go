package deals

import (
	"context"

	"github.com/motorcrm/motorcrm/internal/cars"
	"github.com/motorcrm/motorcrm/internal/customers"
	"github.com/motorcrm/motorcrm/internal/zones"
)

type lookups struct {
	customers *customers.Service
	cars      *cars.Service
	zones     *zones.Service
}

// NewLookups adapts the customer, car and zone services to Lookups.
func NewLookups(customerSvc *customers.Service, carSvc *cars.Service, zoneSvc *zones.Service) Lookups {
	return lookups{customers: customerSvc, cars: carSvc, zones: zoneSvc}
}

func (l lookups) Customers(ctx context.Context, orgID int64) ([]customers.Customer, error) {
	return l.customers.Options(ctx, orgID)
}

func (l lookups) AvailableCars(ctx context.Context, orgID int64) ([]cars.Car, error) {
	return l.cars.Available(ctx, orgID)
}

func (l lookups) Zones(ctx context.Context, orgID int64) ([]zones.Zone, error) {
	return l.zones.Options(ctx, orgID)
}
