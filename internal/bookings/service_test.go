package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/shared"
)

func TestCreateCopiesCatalogPrices(t *testing.T) {
	f := newFixture()
	b := f.draft(t)

	assert.Equal(t, "BK-202603-0001", b.DocNumber)
	assert.Equal(t, StatusDraft, b.Status)
	require.Len(t, b.Services, 2)
	assert.Equal(t, "Hotel Riad", b.Services[0].ServiceName)
	assert.Equal(t, "riad@example.com", b.Services[0].ProviderEmail)
	assert.Equal(t, "240", b.Services[0].Total().String())
	assert.Equal(t, LinePending, b.Services[1].Status)
	assert.Equal(t, "540", b.Total().String())
	assert.True(t, b.AcceptedTotal().IsZero())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	start := time.Date(2026, 4, 5, 15, 30, 0, 0, time.UTC)
	base := BookingInput{CustomerID: 7, TripStart: start, TripEnd: start, Pax: 2, Lines: []LineInput{{ServiceID: 21, Quantity: 1}}}

	in := base
	in.TripEnd = start.Add(-24 * time.Hour)
	_, err := f.service.Create(ctx, 1, 5, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = base
	in.Lines = nil
	_, err = f.service.Create(ctx, 1, 5, in)
	require.Error(t, err)
	assert.Contains(t, shared.FieldErrors(err), "Lines")

	in = base
	in.Lines = []LineInput{{ServiceID: 23, Quantity: 1}}
	_, err = f.service.Create(ctx, 1, 5, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = base
	in.CustomerID = 99
	_, err = f.service.Create(ctx, 1, 5, in)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.repo.bookings)

	b, err := f.service.Create(ctx, 1, 5, base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), b.TripStart)
}

func TestUpdateOnlyDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.draft(t)

	in := BookingInput{CustomerID: 7, TripStart: b.TripStart, TripEnd: b.TripEnd, Pax: 4, Lines: []LineInput{{ServiceID: 22, Quantity: 3}}}
	updated, err := f.service.Update(ctx, 1, 5, b.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Pax)
	require.Len(t, updated.Services, 1)
	assert.Equal(t, "900", updated.Total().String())

	_, err = f.workflow.SendRequests(ctx, 1, 5, b.ID)
	require.NoError(t, err)
	_, err = f.service.Update(ctx, 1, 5, b.ID, in)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.service.AddLine(ctx, 1, 5, b.ID, LineInput{ServiceID: 21, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidState)
}

type captureInvoice struct {
	data documents.InvoiceData
}

func (c *captureInvoice) Invoice(ctx context.Context, data documents.InvoiceData) ([]byte, error) {
	c.data = data
	return []byte("%PDF"), nil
}

func TestInvoiceListsAcceptedLines(t *testing.T) {
	f := newFixture()
	renderer := &captureInvoice{}
	f.service.renderer = renderer
	ctx := context.Background()
	b := f.requested(t)

	_, _, err := f.service.Invoice(ctx, 1, b.ID, language.Und)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)

	pdf, filename, err := f.service.Invoice(ctx, 1, b.ID, language.French)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), pdf)
	assert.Equal(t, b.DocNumber+".pdf", filename)
	require.Len(t, renderer.data.Lines, 1)
	assert.Equal(t, "Desert 4x4", renderer.data.Lines[0].Name)
	assert.Equal(t, "300", renderer.data.Total.String())
	assert.Equal(t, language.French, renderer.data.Locale)
	assert.Equal(t, "CUST-00007", renderer.data.Customer.Code)
}
