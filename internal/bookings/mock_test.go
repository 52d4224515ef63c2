package bookings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/notify"
	"github.com/motorcrm/motorcrm/internal/revenue"
	"github.com/motorcrm/motorcrm/internal/services"
	"github.com/motorcrm/motorcrm/internal/shared"
)

type mockRepository struct {
	bookings  map[int64]*Booking
	lines     map[int64]*BookingService
	customers map[int64]bool
	email     *string
	incomes   []revenue.Transaction
	audits    []shared.AuditLog
	nextID    int64
	seq       int
}

func newMockRepository() *mockRepository {
	email := "jane@example.com"
	return &mockRepository{
		bookings:  map[int64]*Booking{},
		lines:     map[int64]*BookingService{},
		customers: map[int64]bool{7: true},
		email:     &email,
		nextID:    1,
	}
}

// WithTx restores the previous state when fn fails.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	bookings := map[int64]*Booking{}
	for id, b := range m.bookings {
		cp := *b
		bookings[id] = &cp
	}
	lines := map[int64]*BookingService{}
	for id, l := range m.lines {
		cp := *l
		lines[id] = &cp
	}
	incomes, audits := len(m.incomes), len(m.audits)
	if err := fn(ctx, m); err != nil {
		m.bookings, m.lines = bookings, lines
		m.incomes, m.audits = m.incomes[:incomes], m.audits[:audits]
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, orgID, id int64) (*Booking, error) {
	b, err := m.LockBooking(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	b.Services, _ = m.Lines(ctx, id)
	return b, nil
}

func (m *mockRepository) List(ctx context.Context, req ListBookingsRequest) ([]Booking, int, error) {
	var out []Booking
	for _, b := range m.bookings {
		if b.OrganizationID == req.OrganizationID && (req.Status == "" || b.Status == req.Status) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockRepository) Create(ctx context.Context, b Booking) (int64, error) {
	b.ID = m.nextID
	m.nextID++
	b.CustomerName = "Jane Doe"
	b.CustomerEmail = m.email
	m.bookings[b.ID] = &b
	return b.ID, nil
}

func (m *mockRepository) UpdateHeader(ctx context.Context, b Booking) error {
	if _, ok := m.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	b.Services = nil
	m.bookings[b.ID] = &b
	return nil
}

func (m *mockRepository) InsertLine(ctx context.Context, line BookingService) (int64, error) {
	line.ID = m.nextID
	m.nextID++
	m.lines[line.ID] = &line
	return line.ID, nil
}

func (m *mockRepository) DeleteLine(ctx context.Context, bookingID, lineID int64) error {
	l, ok := m.lines[lineID]
	if !ok || l.BookingID != bookingID {
		return fmt.Errorf("%w: service line not found", ErrNotFound)
	}
	delete(m.lines, lineID)
	return nil
}

func (m *mockRepository) DeleteLines(ctx context.Context, bookingID int64) error {
	for id, l := range m.lines {
		if l.BookingID == bookingID {
			delete(m.lines, id)
		}
	}
	return nil
}

func (m *mockRepository) LockBooking(ctx context.Context, orgID, id int64) (*Booking, error) {
	b, ok := m.bookings[id]
	if !ok || b.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockRepository) LineBooking(ctx context.Context, orgID, lineID int64) (int64, error) {
	l, ok := m.lines[lineID]
	if !ok {
		return 0, fmt.Errorf("%w: service line not found", ErrNotFound)
	}
	if b, ok := m.bookings[l.BookingID]; !ok || b.OrganizationID != orgID {
		return 0, fmt.Errorf("%w: service line not found", ErrNotFound)
	}
	return l.BookingID, nil
}

func (m *mockRepository) LockLine(ctx context.Context, lineID int64) (*BookingService, error) {
	l, ok := m.lines[lineID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepository) Lines(ctx context.Context, bookingID int64) ([]BookingService, error) {
	var out []BookingService
	for _, l := range m.lines {
		if l.BookingID == bookingID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) SetLineDecision(ctx context.Context, lineID int64, status LineStatus, note *string, at time.Time) error {
	l := m.lines[lineID]
	l.Status = status
	l.ResponseNote = note
	l.RespondedAt = &at
	return nil
}

func (m *mockRepository) SetStatus(ctx context.Context, orgID, id int64, status Status) error {
	b, ok := m.bookings[id]
	if !ok || b.OrganizationID != orgID {
		return ErrNotFound
	}
	b.Status = status
	return nil
}

func (m *mockRepository) MarkRequested(ctx context.Context, bookingID int64, at time.Time) error {
	b := m.bookings[bookingID]
	b.RequestedAt = &at
	b.ConfirmationSentAt = nil
	for _, l := range m.lines {
		if l.BookingID == bookingID && l.Status == LinePending {
			l.RequestedAt = &at
			l.RemindedAt = nil
		}
	}
	return nil
}

func (m *mockRepository) ClaimConfirmation(ctx context.Context, bookingID int64, at time.Time) (bool, error) {
	b := m.bookings[bookingID]
	if b.ConfirmationSentAt != nil {
		return false, nil
	}
	b.ConfirmationSentAt = &at
	return true, nil
}

func (m *mockRepository) ReleaseConfirmation(ctx context.Context, bookingID int64) error {
	if b, ok := m.bookings[bookingID]; ok {
		b.ConfirmationSentAt = nil
	}
	return nil
}

func (m *mockRepository) CustomerExists(ctx context.Context, orgID, customerID int64) (bool, error) {
	return m.customers[customerID], nil
}

func (m *mockRepository) NextDocNumber(ctx context.Context, orgID int64, at time.Time) (string, error) {
	m.seq++
	return shared.FormatDocNumber(DocPrefix, at, m.seq), nil
}

func (m *mockRepository) RecordIncome(ctx context.Context, tx revenue.Transaction) (bool, error) {
	for _, existing := range m.incomes {
		if existing.Source == tx.Source && *existing.RefID == *tx.RefID {
			return false, nil
		}
	}
	m.incomes = append(m.incomes, tx)
	return true, nil
}

func (m *mockRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func (m *mockRepository) Contact(ctx context.Context, orgID, bookingID int64) (*Contact, error) {
	if _, err := m.LockBooking(ctx, orgID, bookingID); err != nil {
		return nil, err
	}
	return &Contact{Organization: "Acme Travel", Locale: "en", CustomerName: "Jane Doe", CustomerEmail: m.email, CustomerCode: "CUST-00007"}, nil
}

func (m *mockRepository) StaleLines(ctx context.Context, before time.Time, limit int) ([]StaleLine, error) {
	var out []StaleLine
	for _, l := range m.lines {
		b := m.bookings[l.BookingID]
		if b.Status != StatusRequested || l.Status != LinePending {
			continue
		}
		last := l.RequestedAt
		if l.RemindedAt != nil {
			last = l.RemindedAt
		}
		if last != nil && last.Before(before) {
			out = append(out, StaleLine{OrganizationID: b.OrganizationID, BookingID: b.ID, LineID: l.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineID < out[j].LineID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) MarkReminded(ctx context.Context, lineID int64, at time.Time) error {
	m.lines[lineID].RemindedAt = &at
	return nil
}

func (m *mockRepository) Unnotified(ctx context.Context, limit int) ([]SettledBooking, error) {
	var out []SettledBooking
	for _, b := range m.bookings {
		if (b.Status == StatusConfirmed || b.Status == StatusNeedsAttention) && b.ConfirmationSentAt == nil {
			out = append(out, SettledBooking{OrganizationID: b.OrganizationID, BookingID: b.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingID < out[j].BookingID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCatalog map[int64]services.Service

func (c fakeCatalog) GetMany(ctx context.Context, orgID int64, ids []int64) (map[int64]services.Service, error) {
	out := map[int64]services.Service{}
	for _, id := range ids {
		if s, ok := c[id]; ok && s.OrganizationID == orgID {
			out[id] = s
		}
	}
	return out, nil
}

func newCatalog() fakeCatalog {
	return fakeCatalog{
		21: {ID: 21, OrganizationID: 1, Name: "Hotel Riad", ProviderName: "Riad Atlas", ProviderEmail: "riad@example.com",
			UnitPrice: decimal.NewFromInt(120), UnitCost: decimal.NewFromInt(90), IsActive: true},
		22: {ID: 22, OrganizationID: 1, Name: "Desert 4x4", ProviderName: "Sahara Tours", ProviderEmail: "sahara@example.com",
			UnitPrice: decimal.NewFromInt(300), UnitCost: decimal.NewFromInt(200), IsActive: true},
		23: {ID: 23, OrganizationID: 1, Name: "Old guide", ProviderName: "Ali", ProviderEmail: "ali@example.com",
			UnitPrice: decimal.NewFromInt(50), IsActive: false},
	}
}

type fakeQueue struct {
	emails []notify.Email
	fail   bool
}

func (q *fakeQueue) EnqueueEmail(ctx context.Context, email notify.Email) error {
	if q.fail {
		return errors.New("redis unavailable")
	}
	q.emails = append(q.emails, email)
	return nil
}

func (q *fakeQueue) byTemplate(template string) []notify.Email {
	var out []notify.Email
	for _, e := range q.emails {
		if e.Template == template {
			out = append(out, e)
		}
	}
	return out
}

type countingRecorder map[string]int

func (c countingRecorder) RecordResponse(outcome string) {
	c[outcome]++
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *mockRepository
	queue    *fakeQueue
	metrics  countingRecorder
	service  *Service
	workflow *Workflow
}

func newFixture() *fixture {
	repo := newMockRepository()
	queue := &fakeQueue{}
	metrics := countingRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := NewTokenSigner("respond-secret", 0)
	tokens.now = func() time.Time { return testNow }
	svc := NewService(repo, newCatalog(), nil, nil)
	svc.now = func() time.Time { return testNow }
	wf := NewWorkflow(repo, queue, tokens, "https://crm.example.com/", metrics, logger)
	wf.now = func() time.Time { return testNow }
	return &fixture{repo: repo, queue: queue, metrics: metrics, service: svc, workflow: wf}
}

func (f *fixture) draft(t *testing.T, lines ...LineInput) *Booking {
	t.Helper()
	if len(lines) == 0 {
		lines = []LineInput{{ServiceID: 21, Quantity: 2}, {ServiceID: 22, Quantity: 1}}
	}
	b, err := f.service.Create(context.Background(), 1, 5, BookingInput{
		CustomerID: 7,
		TripStart:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		TripEnd:    time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC),
		Pax:        2,
		Lines:      lines,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) requested(t *testing.T) *Booking {
	t.Helper()
	b := f.draft(t)
	_, err := f.workflow.SendRequests(context.Background(), 1, 5, b.ID)
	require.NoError(t, err)
	got, err := f.repo.Get(context.Background(), 1, b.ID)
	require.NoError(t, err)
	return got
}

func tokenFromLink(link string) string {
	return link[strings.LastIndex(link, "/")+1:]
}
