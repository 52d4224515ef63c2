package revenue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tells income from expense.
type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindExpense Kind = "EXPENSE"
)

// Source names what produced a transaction.
type Source string

const (
	SourceDeal    Source = "DEAL"
	SourceBooking Source = "BOOKING"
	SourceService Source = "SERVICE"
	SourceOther   Source = "OTHER"
)

// Sources lists the sources in display order.
func Sources() []Source {
	return []Source{SourceDeal, SourceBooking, SourceService, SourceOther}
}

// Transaction is one ledger movement.
type Transaction struct {
	ID             int64
	OrganizationID int64
	Kind           Kind
	Source         Source
	RefID          *int64
	ServiceID      *int64
	ServiceName    string
	Amount         decimal.Decimal
	OccurredOn     time.Time
	Description    string
	CreatedBy      int64
	CreatedAt      time.Time
}

// Granularity is the bucket size of a revenue summary.
type Granularity string

const (
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

// ParseGranularity falls back to Month for unknown input.
func ParseGranularity(raw string) Granularity {
	switch Granularity(raw) {
	case Week, Quarter, Year:
		return Granularity(raw)
	default:
		return Month
	}
}

// PeriodTotal is the aggregate of one bucket.
type PeriodTotal struct {
	Period  string
	Start   time.Time
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// RevenueSummary aggregates transactions over a date range.
type RevenueSummary struct {
	From         time.Time
	To           time.Time
	Granularity  Granularity
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Net          decimal.Decimal
	Margin       decimal.Decimal
	BySource     map[Source]decimal.Decimal
	Periods      []PeriodTotal
}

// BilledLine is an accepted booking line seen by the balance calculator.
type BilledLine struct {
	BookingID int64
	ServiceID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
}

// ServiceBalance is what a service earned against what it cost and what was paid out.
type ServiceBalance struct {
	ServiceID int64
	Name      string
	Billed    decimal.Decimal
	Cost      decimal.Decimal
	Paid      decimal.Decimal
	Balance   decimal.Decimal
	Bookings  int
}

// BalanceReport lists per-service balances and their totals.
type BalanceReport struct {
	Services []ServiceBalance
	Billed   decimal.Decimal
	Cost     decimal.Decimal
	Paid     decimal.Decimal
	Balance  decimal.Decimal
}
