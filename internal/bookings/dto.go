package bookings

import "time"

// LineInput is one requested service.
type LineInput struct {
	ServiceID int64 `validate:"required,gt=0"`
	Quantity  int   `validate:"gte=1,lte=999"`
}

// BookingInput is the create/edit payload.
type BookingInput struct {
	CustomerID int64       `validate:"required,gt=0"`
	TripStart  time.Time   `validate:"required"`
	TripEnd    time.Time   `validate:"required"`
	Pax        int         `validate:"gte=1,lte=500"`
	Notes      *string     `validate:"omitempty,max=2000"`
	Lines      []LineInput `validate:"required,min=1,dive"`
}

// ListBookingsRequest filters the booking list.
type ListBookingsRequest struct {
	OrganizationID int64
	Status         Status
	Search         string
	Limit          int
	Offset         int
}

// RespondInput is a provider answer.
type RespondInput struct {
	Decision Decision `json:"decision" validate:"required,oneof=accepted declined"`
	Note     string   `json:"note" validate:"max=1000"`
}
