package revenue

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summarize aggregates the transactions whose date lies in [from, to]. A zero bound
// is open. Empty periods are omitted and periods are sorted ascending.
func Summarize(txs []Transaction, from, to time.Time, g Granularity) RevenueSummary {
	s := RevenueSummary{
		From:         from,
		To:           to,
		Granularity:  g,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		BySource:     make(map[Source]decimal.Decimal),
	}
	buckets := make(map[string]*PeriodTotal)
	for _, tx := range txs {
		day := truncateDay(tx.OccurredOn)
		if !from.IsZero() && day.Before(truncateDay(from)) {
			continue
		}
		if !to.IsZero() && day.After(truncateDay(to)) {
			continue
		}
		key, start := periodOf(day, g)
		b, ok := buckets[key]
		if !ok {
			b = &PeriodTotal{Period: key, Start: start, Income: decimal.Zero, Expense: decimal.Zero}
			buckets[key] = b
		}
		switch tx.Kind {
		case KindIncome:
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
			s.BySource[tx.Source] = s.BySource[tx.Source].Add(tx.Amount)
			b.Income = b.Income.Add(tx.Amount)
		case KindExpense:
			s.TotalExpense = s.TotalExpense.Add(tx.Amount)
			b.Expense = b.Expense.Add(tx.Amount)
		}
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpense)
	s.Margin = MarginPercent(s.TotalIncome, s.Net)

	s.Periods = make([]PeriodTotal, 0, len(buckets))
	for _, b := range buckets {
		b.Net = b.Income.Sub(b.Expense)
		s.Periods = append(s.Periods, *b)
	}
	sort.Slice(s.Periods, func(i, j int) bool { return s.Periods[i].Start.Before(s.Periods[j].Start) })
	return s
}

// MarginPercent returns net / income * 100 rounded to two places, or zero without income.
func MarginPercent(income, net decimal.Decimal) decimal.Decimal {
	if income.IsZero() {
		return decimal.Zero
	}
	return net.Div(income).Mul(hundred).Round(2)
}

// Balances computes per-service balances from accepted booking lines and the EXPENSE
// transactions tagged with a service. Sorted by balance descending, then name.
func Balances(lines []BilledLine, txs []Transaction) BalanceReport {
	byService := make(map[int64]*ServiceBalance)
	seen := make(map[int64]map[int64]struct{})
	get := func(id int64, name string) *ServiceBalance {
		b, ok := byService[id]
		if !ok {
			b = &ServiceBalance{ServiceID: id, Name: name, Billed: decimal.Zero, Cost: decimal.Zero, Paid: decimal.Zero}
			byService[id] = b
			seen[id] = make(map[int64]struct{})
		}
		if b.Name == "" {
			b.Name = name
		}
		return b
	}
	for _, l := range lines {
		b := get(l.ServiceID, l.Name)
		qty := decimal.NewFromInt(int64(l.Quantity))
		b.Billed = b.Billed.Add(l.UnitPrice.Mul(qty))
		b.Cost = b.Cost.Add(l.UnitCost.Mul(qty))
		seen[l.ServiceID][l.BookingID] = struct{}{}
	}
	for _, tx := range txs {
		if tx.Kind != KindExpense || tx.ServiceID == nil {
			continue
		}
		b := get(*tx.ServiceID, tx.ServiceName)
		b.Paid = b.Paid.Add(tx.Amount)
	}

	report := BalanceReport{Billed: decimal.Zero, Cost: decimal.Zero, Paid: decimal.Zero, Balance: decimal.Zero}
	for id, b := range byService {
		b.Bookings = len(seen[id])
		b.Balance = b.Billed.Sub(b.Cost).Sub(b.Paid)
		report.Services = append(report.Services, *b)
		report.Billed = report.Billed.Add(b.Billed)
		report.Cost = report.Cost.Add(b.Cost)
		report.Paid = report.Paid.Add(b.Paid)
		report.Balance = report.Balance.Add(b.Balance)
	}
	sort.Slice(report.Services, func(i, j int) bool {
		a, b := report.Services[i], report.Services[j]
		if c := a.Balance.Cmp(b.Balance); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})
	return report
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// periodOf returns the bucket key and start date of day.
func periodOf(day time.Time, g Granularity) (string, time.Time) {
	switch g {
	case Week:
		y, w := day.ISOWeek()
		offset := (int(day.Weekday()) + 6) % 7
		return fmt.Sprintf("%d-W%02d", y, w), day.AddDate(0, 0, -offset)
	case Quarter:
		q := (int(day.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", day.Year(), q), time.Date(day.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return fmt.Sprintf("%d", day.Year()), time.Date(day.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day.Format("2006-01"), time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}
