package customers

import "time"

// Customer is a buyer of cars or a traveller on bookings.
type Customer struct {
	ID             int64
	OrganizationID int64
	Code           string
	FullName       string
	Email          *string
	Phone          *string
	NationalID     *string
	Address        *string
	ZoneID         *int64
	ZoneName       string
	Notes          *string
	IsActive       bool
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
