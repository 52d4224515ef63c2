package cars

import "github.com/shopspring/decimal"

// CarInput is the create/edit form payload.
type CarInput struct {
	VIN     string          `validate:"required,len=17,alphanum"`
	Make    string          `validate:"required,max=80"`
	Model   string          `validate:"required,max=80"`
	Year    int             `validate:"required,gte=1950"`
	Color   *string         `validate:"omitempty,max=40"`
	Mileage int             `validate:"gte=0"`
	Price   decimal.Decimal `validate:"gte=0"`
	Status  Status          `validate:"required,oneof=AVAILABLE RESERVED SOLD MAINTENANCE"`
	ZoneID  *int64          `validate:"omitempty,gt=0"`
	Notes   *string         `validate:"omitempty,max=2000"`
}

// ListCarsRequest filters the car listing.
type ListCarsRequest struct {
	OrganizationID int64
	Search         string
	Status         Status
	ZoneID         *int64
	Limit          int
	Offset         int
}
