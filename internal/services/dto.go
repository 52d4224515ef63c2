package services

import "github.com/shopspring/decimal"

// ServiceInput is the create/edit form payload.
type ServiceInput struct {
	Name          string          `validate:"required,max=160"`
	Category      Category        `validate:"required,oneof=HOTEL TRANSPORT GUIDE ACTIVITY OTHER"`
	ProviderName  string          `validate:"required,max=160"`
	ProviderEmail string          `validate:"required,email,max=200"`
	UnitPrice     decimal.Decimal `validate:"gte=0"`
	UnitCost      decimal.Decimal `validate:"gte=0"`
	IsActive      bool
}

// ListServicesRequest filters the catalog listing.
type ListServicesRequest struct {
	OrganizationID int64
	Search         string
	Category       Category
	ActiveOnly     bool
	Limit          int
	Offset         int
}
