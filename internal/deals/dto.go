package deals

import "github.com/shopspring/decimal"

// DealInput is the create/edit payload.
type DealInput struct {
	CustomerID  int64           `validate:"required,gt=0"`
	CarID       int64           `validate:"required,gt=0"`
	ZoneID      *int64          `validate:"omitempty,gt=0"`
	SalePrice   decimal.Decimal `validate:"gt=0"`
	DownPayment decimal.Decimal `validate:"gte=0"`
	Terms       string          `validate:"max=20000"`
}

// ListDealsRequest filters the deal list.
type ListDealsRequest struct {
	OrganizationID int64
	Status         Status
	Search         string
	Limit          int
	Offset         int
}
