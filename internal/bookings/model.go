package bookings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusRequested      Status = "REQUESTED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusNeedsAttention Status = "NEEDS_ATTENTION"
	StatusCancelled      Status = "CANCELLED"
)

// Statuses lists every booking status in display order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusRequested, StatusConfirmed, StatusNeedsAttention, StatusCancelled}
}

// Final reports whether no further transition is possible.
func (s Status) Final() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// LineStatus is the provider answer for one booked service.
type LineStatus string

const (
	LinePending  LineStatus = "PENDING"
	LineAccepted LineStatus = "ACCEPTED"
	LineDeclined LineStatus = "DECLINED"
)

// Decision is a provider answer as submitted.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// LineStatus maps the decision to the stored line status.
func (d Decision) LineStatus() LineStatus {
	if d == DecisionAccepted {
		return LineAccepted
	}
	return LineDeclined
}

// Booking is a trip for one customer made of provider services.
type Booking struct {
	ID                 int64
	OrganizationID     int64
	DocNumber          string
	CustomerID         int64
	CustomerName       string
	CustomerEmail      *string
	TripStart          time.Time
	TripEnd            time.Time
	Pax                int
	Status             Status
	Notes              *string
	RequestedAt        *time.Time
	ConfirmationSentAt *time.Time
	CreatedBy          *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Services           []BookingService
}

// Editable reports whether the header and lines may change freely.
func (b Booking) Editable() bool {
	return b.Status == StatusDraft
}

// LinesEditable reports whether lines may be removed or added.
func (b Booking) LinesEditable() bool {
	return b.Status == StatusDraft || b.Status == StatusNeedsAttention
}

// Total is the price of every line.
func (b Booking) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.Services {
		total = total.Add(s.Total())
	}
	return total
}

// AcceptedTotal is the price of the accepted lines, billed on confirmation.
func (b Booking) AcceptedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.Services {
		if s.Status == LineAccepted {
			total = total.Add(s.Total())
		}
	}
	return total
}

// Acceptance aggregates the lines of the booking.
func (b Booking) Acceptance() Acceptance {
	return Aggregate(b.Services)
}

// BookingService is one service line of a booking.
type BookingService struct {
	ID            int64
	BookingID     int64
	ServiceID     int64
	ServiceName   string
	ProviderName  string
	ProviderEmail string
	Quantity      int
	UnitPrice     decimal.Decimal
	UnitCost      decimal.Decimal
	Status        LineStatus
	ResponseNote  *string
	RespondedAt   *time.Time
	RequestedAt   *time.Time
	RemindedAt    *time.Time
	CreatedAt     time.Time
}

// Total is quantity times unit price.
func (s BookingService) Total() decimal.Decimal {
	return s.UnitPrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// Acceptance counts line answers of a booking.
type Acceptance struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Declined int `json:"declined"`
	Pending  int `json:"pending"`
}

// Aggregate counts the answers of lines.
func Aggregate(lines []BookingService) Acceptance {
	a := Acceptance{Total: len(lines)}
	for _, l := range lines {
		switch l.Status {
		case LineAccepted:
			a.Accepted++
		case LineDeclined:
			a.Declined++
		default:
			a.Pending++
		}
	}
	return a
}

// Complete reports whether every line has an answer.
func (a Acceptance) Complete() bool {
	return a.Total > 0 && a.Pending == 0
}

// Outcome is the booking status once every line has an answer.
func (a Acceptance) Outcome() Status {
	if a.Declined == 0 {
		return StatusConfirmed
	}
	return StatusNeedsAttention
}

// RespondResult is returned by Workflow.Respond.
type RespondResult struct {
	BookingID  int64      `json:"booking_id"`
	Status     Status     `json:"status"`
	Acceptance Acceptance `json:"acceptance"`
	Notified   bool       `json:"notified"`
}

// Contact carries what notifications need about a booking.
type Contact struct {
	Organization  string
	Locale        string
	CustomerName  string
	CustomerEmail *string
	CustomerCode  string
	Phone         *string
	Address       *string
}

// SettledBooking is a settled booking whose customer email is still owed.
type SettledBooking struct {
	OrganizationID int64
	BookingID      int64
}

// StaleLine is a PENDING line waiting on its provider.
type StaleLine struct {
	OrganizationID int64
	BookingID      int64
	LineID         int64
}
