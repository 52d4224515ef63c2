package revenue

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	servicesSheet = "Services"
)

// WriteXLSX renders a report as a workbook with a Summary and a Services sheet.
func WriteXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(servicesSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	s := r.Summary
	rows := [][]any{
		{"From", r.Range.From.Format(time.DateOnly)},
		{"To", r.Range.To.Format(time.DateOnly)},
		{"Income", s.TotalIncome.InexactFloat64()},
		{"Expense", s.TotalExpense.InexactFloat64()},
		{"Net", s.Net.InexactFloat64()},
		{"Margin %", s.Margin.InexactFloat64()},
		{},
		{"Period", "Income", "Expense", "Net"},
	}
	for _, p := range s.Periods {
		rows = append(rows, []any{p.Period, p.Income.InexactFloat64(), p.Expense.InexactFloat64(), p.Net.InexactFloat64()})
	}
	rows = append(rows, []any{}, []any{"Source", "Income"})
	for _, src := range Sources() {
		if v, ok := s.BySource[src]; ok {
			rows = append(rows, []any{string(src), v.InexactFloat64()})
		}
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A6", bold); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(summarySheet, "A8", "D8", bold); err != nil {
		return nil, err
	}

	b := r.Balances
	svcRows := [][]any{{"Service", "Bookings", "Billed", "Cost", "Paid", "Balance"}}
	for _, sb := range b.Services {
		svcRows = append(svcRows, []any{sb.Name, sb.Bookings, sb.Billed.InexactFloat64(), sb.Cost.InexactFloat64(), sb.Paid.InexactFloat64(), sb.Balance.InexactFloat64()})
	}
	svcRows = append(svcRows, []any{"Total", "", b.Billed.InexactFloat64(), b.Cost.InexactFloat64(), b.Paid.InexactFloat64(), b.Balance.InexactFloat64()})
	if err := writeRows(f, servicesSheet, svcRows); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(servicesSheet, "A1", "F1", bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
