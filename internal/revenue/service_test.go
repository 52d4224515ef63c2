package revenue

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/motorcrm/motorcrm/internal/shared"
)

type mockRepository struct {
	txs    map[int64]*Transaction
	lines  []BilledLine
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{txs: map[int64]*Transaction{}, nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, req ListTransactionsRequest) ([]Transaction, int, error) {
	var out []Transaction
	for _, t := range m.txs {
		if t.OrganizationID == req.OrganizationID {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) Between(ctx context.Context, orgID int64, from, to time.Time) ([]Transaction, error) {
	var out []Transaction
	for _, t := range m.txs {
		if t.OrganizationID == orgID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockRepository) AcceptedLines(ctx context.Context, orgID int64, from, to time.Time) ([]BilledLine, error) {
	return m.lines, nil
}

// gatedRepository holds Between until release is closed and fails when its context
// was cancelled meanwhile.
type gatedRepository struct {
	*mockRepository
	started chan struct{}
	release chan struct{}
}

func (g *gatedRepository) Between(ctx context.Context, orgID int64, from, to time.Time) ([]Transaction, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.mockRepository.Between(ctx, orgID, from, to)
}

func (m *mockRepository) Get(ctx context.Context, orgID, id int64) (*Transaction, error) {
	t, ok := m.txs[id]
	if !ok || t.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepository) Create(ctx context.Context, t Transaction) (int64, error) {
	t.ID = m.nextID
	m.nextID++
	m.txs[t.ID] = &t
	return t.ID, nil
}

func (m *mockRepository) Delete(ctx context.Context, orgID, id int64) error {
	delete(m.txs, id)
	return nil
}

func TestCreateTransactionValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.CreateTransaction(context.Background(), 1, 1, TransactionInput{
		Kind: KindIncome, Source: SourceDeal, Amount: amount("10"), OccurredOn: day(2026, 1, 1),
	})
	require.Error(t, err, "deal income is workflow-only")
	assert.Contains(t, shared.FieldErrors(err), "Source")

	_, err = svc.CreateTransaction(context.Background(), 1, 1, TransactionInput{
		Kind: KindExpense, Source: SourceService, Amount: amount("0"), OccurredOn: day(2026, 1, 1),
	})
	require.Error(t, err)
	assert.Contains(t, shared.FieldErrors(err), "Amount")

	tx, err := svc.CreateTransaction(context.Background(), 1, 1, TransactionInput{
		Kind: KindExpense, Source: SourceService, ServiceID: ptr(4), Amount: amount("12.345"),
		OccurredOn: time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC), Description: " fuel ",
	})
	require.NoError(t, err)
	assert.Equal(t, "12.35", tx.Amount.StringFixed(2))
	assert.Equal(t, day(2026, 1, 1), tx.OccurredOn)
	assert.Equal(t, "fuel", tx.Description)
}

func TestDeleteWorkflowIncomeIsProtected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	id, _ := repo.Create(context.Background(), Transaction{OrganizationID: 1, Kind: KindIncome, Source: SourceDeal, RefID: ptr(9), Amount: amount("100")})

	err := svc.DeleteTransaction(context.Background(), 1, 1, id)
	require.ErrorIs(t, err, ErrProtected)
	assert.Equal(t, "Deal income is managed by its workflow", shared.UserSafeMessage(err))

	manual, _ := repo.Create(context.Background(), Transaction{OrganizationID: 1, Kind: KindExpense, Source: SourceOther, Amount: amount("5")})
	require.NoError(t, svc.DeleteTransaction(context.Background(), 1, 1, manual))
	assert.ErrorIs(t, svc.DeleteTransaction(context.Background(), 2, 1, id), ErrNotFound)
}

func TestReportCombinesSummaryAndBalances(t *testing.T) {
	repo := newMockRepository()
	repo.lines = []BilledLine{{BookingID: 1, ServiceID: 4, Name: "Riad", Quantity: 2, UnitPrice: amount("100"), UnitCost: amount("60")}}
	_, _ = repo.Create(context.Background(), Transaction{OrganizationID: 1, Kind: KindIncome, Source: SourceBooking, RefID: ptr(1), Amount: amount("200"), OccurredOn: day(2026, 3, 5)})
	_, _ = repo.Create(context.Background(), Transaction{OrganizationID: 1, Kind: KindExpense, Source: SourceService, ServiceID: ptr(4), Amount: amount("120"), OccurredOn: day(2026, 3, 6)})
	svc := NewService(repo, nil)

	report, err := svc.Report(context.Background(), 1, MonthRange(day(2026, 3, 15)), Month)
	require.NoError(t, err)
	assert.Equal(t, day(2026, 3, 31), report.Range.To)
	assert.Equal(t, "80", report.Summary.Net.String())
	require.Len(t, report.Balances.Services, 1)
	assert.Equal(t, "-40", report.Balances.Services[0].Balance.String())
}

func TestExportWritesBothSheets(t *testing.T) {
	repo := newMockRepository()
	repo.lines = []BilledLine{{BookingID: 1, ServiceID: 4, Name: "Riad", Quantity: 1, UnitPrice: amount("100"), UnitCost: amount("60")}}
	_, _ = repo.Create(context.Background(), Transaction{OrganizationID: 1, Kind: KindIncome, Source: SourceBooking, RefID: ptr(1), Amount: amount("100"), OccurredOn: day(2026, 3, 5)})
	svc := NewService(repo, nil)

	data, err := svc.Export(context.Background(), 1, MonthRange(day(2026, 3, 1)), Month)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Services"}, f.GetSheetList())

	income, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "100", income)
	period, err := f.GetCellValue("Summary", "A9")
	require.NoError(t, err)
	assert.Equal(t, "2026-03", period)

	rows, err := f.GetRows("Services")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Riad", rows[1][0])
	assert.Equal(t, "Total", rows[2][0])
}

func TestExportSurvivesCancelledFirstCaller(t *testing.T) {
	repo := &gatedRepository{mockRepository: newMockRepository(), started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewService(repo, nil)
	rng := Range{From: day(2026, 1, 1), To: day(2026, 1, 31)}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Export(firstCtx, 1, rng, Month)
		firstErr <- err
	}()
	<-repo.started

	second := make(chan error, 1)
	var data []byte
	go func() {
		var err error
		data, err = svc.Export(context.Background(), 1, rng, Month)
		second <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(repo.release)
	require.NoError(t, <-second)
	assert.NotEmpty(t, data)
}

func TestMonthRangeAndYearToDate(t *testing.T) {
	r := MonthRange(time.Date(2024, 2, 10, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, day(2024, 2, 1), r.From)
	assert.Equal(t, day(2024, 2, 29), r.To)

	ytd := YearToDate(time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, day(2026, 1, 1), ytd.From)
	assert.Equal(t, day(2026, 5, 3), ytd.To)
}
