package revenue

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionInput is the manual transaction form payload.
type TransactionInput struct {
	Kind        Kind            `validate:"required,oneof=INCOME EXPENSE"`
	Source      Source          `validate:"required,oneof=SERVICE OTHER"`
	ServiceID   *int64          `validate:"omitempty,gt=0"`
	Amount      decimal.Decimal `validate:"gt=0"`
	OccurredOn  time.Time       `validate:"required"`
	Description string          `validate:"max=500"`
}

// ListTransactionsRequest filters the ledger listing.
type ListTransactionsRequest struct {
	OrganizationID int64
	From           time.Time
	To             time.Time
	Kind           Kind
	Source         Source
	Limit          int
	Offset         int
}

// Range is an inclusive date range.
type Range struct {
	From time.Time
	To   time.Time
}

// MonthRange returns the calendar month containing t.
func MonthRange(t time.Time) Range {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Range{From: start, To: start.AddDate(0, 1, -1)}
}

// YearToDate returns January 1st through t.
func YearToDate(t time.Time) Range {
	return Range{From: time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC), To: truncateDay(t)}
}
