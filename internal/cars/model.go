package cars

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a car in stock.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusSold        Status = "SOLD"
	StatusMaintenance Status = "MAINTENANCE"
)

// Statuses lists every car status in display order.
func Statuses() []Status {
	return []Status{StatusAvailable, StatusReserved, StatusSold, StatusMaintenance}
}

// Car is a vehicle in stock.
type Car struct {
	ID             int64
	OrganizationID int64
	ZoneID         *int64
	ZoneName       string
	VIN            string
	Make           string
	Model          string
	Year           int
	Color          *string
	Mileage        int
	Price          decimal.Decimal
	Status         Status
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Label is the short display name used in select boxes and documents.
func (c Car) Label() string {
	return c.Make + " " + c.Model + " (" + c.VIN + ")"
}
