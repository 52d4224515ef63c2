package deals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a deal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSigned    Status = "SIGNED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Statuses lists every deal status in display order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusSigned, StatusCompleted, StatusCancelled}
}

// CanTransition reports whether a deal may move from one status to another.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusSigned:
		return from == StatusDraft
	case StatusCompleted:
		return from == StatusSigned
	case StatusCancelled:
		return from == StatusDraft || from == StatusSigned
	}
	return false
}

// Deal is the sale of one car to one customer.
type Deal struct {
	ID             int64
	OrganizationID int64
	DocNumber      string
	CustomerID     int64
	CustomerCode   string
	CustomerName   string
	CarID          int64
	CarLabel       string
	VIN            string
	ZoneID         *int64
	ZoneName       string
	SalePrice      decimal.Decimal
	DownPayment    decimal.Decimal
	Status         Status
	Terms          string
	SignedAt       *time.Time
	CompletedAt    *time.Time
	CreatedBy      *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Balance is what the customer still owes after the down payment.
func (d Deal) Balance() decimal.Decimal {
	return d.SalePrice.Sub(d.DownPayment)
}

// Editable reports whether prices and terms can still change.
func (d Deal) Editable() bool {
	return d.Status == StatusDraft
}

// CarState is the locked view of a car taken while a deal changes it.
type CarState struct {
	ID     int64
	Status string
	ZoneID *int64
	Price  decimal.Decimal
}

// ContractParties carries the organization and customer details printed on the contract.
type ContractParties struct {
	Organization string
	Locale       string
	CustomerCode string
	FullName     string
	Email        *string
	Phone        *string
	Address      *string
	NationalID   *string
	Year         int
	Mileage      int
}
