package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups catalog entries.
type Category string

const (
	CategoryHotel     Category = "HOTEL"
	CategoryTransport Category = "TRANSPORT"
	CategoryGuide     Category = "GUIDE"
	CategoryActivity  Category = "ACTIVITY"
	CategoryOther     Category = "OTHER"
)

// Categories lists the categories in display order.
func Categories() []Category {
	return []Category{CategoryHotel, CategoryTransport, CategoryGuide, CategoryActivity, CategoryOther}
}

// Service is a bookable trip service supplied by an external provider.
type Service struct {
	ID             int64
	OrganizationID int64
	Name           string
	Category       Category
	ProviderName   string
	ProviderEmail  string
	UnitPrice      decimal.Decimal
	UnitCost       decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Margin is the per-unit profit.
func (s Service) Margin() decimal.Decimal {
	return s.UnitPrice.Sub(s.UnitCost)
}
