package bookings

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/notify"
	"github.com/motorcrm/motorcrm/internal/revenue"
)

func TestSendRequestsQueuesProviderEmails(t *testing.T) {
	f := newFixture()
	b := f.draft(t)

	sent, err := f.workflow.SendRequests(context.Background(), 1, 5, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	got, err := f.repo.Get(context.Background(), 1, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, got.Status)
	require.NotNil(t, got.RequestedAt)

	require.Len(t, f.queue.emails, 2)
	email := f.queue.emails[0]
	assert.Equal(t, notify.TemplateProviderRequest, email.Template)
	assert.Equal(t, []string{"riad@example.com"}, email.To)
	assert.Equal(t, "Acme Travel", email.Data["Organization"])
	link, _ := email.Data["Link"].(string)
	assert.True(t, strings.HasPrefix(link, "https://crm.example.com/respond/"), link)

	claims, err := f.workflow.Tokens().Parse(tokenFromLink(link))
	require.NoError(t, err)
	assert.Equal(t, got.Services[0].ID, claims.BookingServiceID)
	assert.Equal(t, b.ID, claims.BookingID)
	assert.Equal(t, int64(1), claims.OrganizationID)
}

func TestSendRequestsTwiceResendsPending(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	_, err := f.workflow.Respond(context.Background(), 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)

	sent, err := f.workflow.SendRequests(context.Background(), 1, 5, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.queue.byTemplate(notify.TemplateProviderRequest), 3)
}

func TestSendRequestsRejectsFinalBooking(t *testing.T) {
	f := newFixture()
	b := f.draft(t)
	require.NoError(t, f.workflow.Cancel(context.Background(), 1, 5, b.ID))

	_, err := f.workflow.SendRequests(context.Background(), 1, 5, b.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.queue.emails)
}

func TestRespondAllAcceptedConfirmsOnce(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	first, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: "Accepted "}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, first.Status)
	assert.Equal(t, Acceptance{Total: 2, Accepted: 1, Pending: 1}, first.Acceptance)
	assert.False(t, first.Notified)

	last, err := f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionAccepted, Note: " see you "}, Actor{UserID: 5})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, last.Status)
	assert.Equal(t, b.ID, last.BookingID)
	assert.True(t, last.Notified)

	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmationSentAt)
	require.NotNil(t, got.Services[1].ResponseNote)
	assert.Equal(t, "see you", *got.Services[1].ResponseNote)

	require.Len(t, f.repo.incomes, 1)
	income := f.repo.incomes[0]
	assert.Equal(t, revenue.SourceBooking, income.Source)
	assert.True(t, decimal.NewFromInt(540).Equal(income.Amount), income.Amount.String())

	confirmed := f.queue.byTemplate(notify.TemplateBookingConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, []string{"jane@example.com"}, confirmed[0].To)
	assert.Equal(t, "540.00", confirmed[0].Data["Total"])

	assert.Equal(t, 2, f.metrics["accepted"])
	assert.Equal(t, 1, f.metrics["confirmed"])

	audit := f.repo.audits[len(f.repo.audits)-1]
	assert.Equal(t, "booking.respond", audit.Action)
	assert.Equal(t, "user:5", audit.Meta["actor"])
}

func TestRespondDeclineNeedsAttention(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	res, err := f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionDeclined, Note: "fully booked"}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsAttention, res.Status)
	assert.Equal(t, Acceptance{Total: 2, Accepted: 1, Declined: 1}, res.Acceptance)
	assert.True(t, res.Notified)

	assert.Empty(t, f.repo.incomes)
	changes := f.queue.byTemplate(notify.TemplateBookingNeedsChanges)
	require.Len(t, changes, 1)
	lines, _ := changes[0].Data["Lines"].([]map[string]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "Desert 4x4", lines[0]["Name"])
	assert.Equal(t, "fully booked", lines[0]["Note"])
	assert.Equal(t, 1, f.metrics["needs_attention"])
}

func TestRespondTwiceIsRejected(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	_, err = f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionDeclined}, Actor{})
	require.ErrorIs(t, err, ErrAlreadyResponded)

	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.Equal(t, LineAccepted, got.Services[0].Status)
}

func TestRespondRequiresRequestedBooking(t *testing.T) {
	f := newFixture()
	b := f.draft(t)

	_, err := f.workflow.Respond(context.Background(), 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.ErrorIs(t, err, ErrInvalidState)
	got, _ := f.repo.Get(context.Background(), 1, b.ID)
	assert.Equal(t, LinePending, got.Services[0].Status)
}

func TestRespondValidatesInput(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: "maybe"}, Actor{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, respondCode(err))

	_, err = f.workflow.Respond(ctx, 1, 999, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.workflow.Respond(ctx, 2, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNotifyFailureReleasesClaim(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()
	f.queue.fail = true

	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	res, err := f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.False(t, res.Notified)

	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.Nil(t, got.ConfirmationSentAt)
	assert.Len(t, f.repo.incomes, 1)
	assert.Equal(t, 1, f.metrics["notify_failed"])
}

func TestRetryNotificationsSendsOwedConfirmation(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()
	f.queue.fail = true
	for _, l := range b.Services {
		_, err := f.workflow.Respond(ctx, 1, l.ID, RespondInput{Decision: DecisionAccepted}, Actor{})
		require.NoError(t, err)
	}
	f.queue.fail = false

	_, err := f.workflow.SendRequests(ctx, 1, 5, b.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	sent, err := f.workflow.RetryNotifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	confirmed := f.queue.byTemplate(notify.TemplateBookingConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, []string{"jane@example.com"}, confirmed[0].To)

	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.NotNil(t, got.ConfirmationSentAt)

	sent, err = f.workflow.RetryNotifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, f.queue.byTemplate(notify.TemplateBookingConfirmed), 1)
}

func TestRetryNotificationsKeepsFailedClaimOpen(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()
	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	f.queue.fail = true
	_, err = f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionDeclined, Note: "Fully booked"}, Actor{})
	require.NoError(t, err)

	sent, err := f.workflow.RetryNotifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.Nil(t, got.ConfirmationSentAt)

	f.queue.fail = false
	sent, err = f.workflow.RetryNotifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.queue.byTemplate(notify.TemplateBookingNeedsChanges), 1)
}

func TestRemoveDeclinedLineConfirmsBooking(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	_, err = f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionDeclined}, Actor{})
	require.NoError(t, err)

	_, err = f.workflow.RemoveLine(ctx, 1, 5, b.ID, b.Services[0].ID)
	require.ErrorIs(t, err, ErrInvalidState)

	got, err := f.workflow.RemoveLine(ctx, 1, 5, b.ID, b.Services[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.Len(t, got.Services, 1)

	require.Len(t, f.repo.incomes, 1)
	assert.True(t, decimal.NewFromInt(240).Equal(f.repo.incomes[0].Amount))
	assert.Len(t, f.queue.byTemplate(notify.TemplateBookingConfirmed), 1)
}

func TestReplaceDeclinedLineAndResend(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	_, err = f.workflow.Respond(ctx, 1, b.Services[1].ID, RespondInput{Decision: DecisionDeclined}, Actor{})
	require.NoError(t, err)

	_, err = f.workflow.SendRequests(ctx, 1, 5, b.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.service.AddLine(ctx, 1, 5, b.ID, LineInput{ServiceID: 22, Quantity: 2})
	require.NoError(t, err)
	_, err = f.workflow.RemoveLine(ctx, 1, 5, b.ID, b.Services[1].ID)
	require.NoError(t, err)

	sent, err := f.workflow.SendRequests(ctx, 1, 5, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.Equal(t, StatusRequested, got.Status)
	assert.Nil(t, got.ConfirmationSentAt)
	res, err := f.workflow.Respond(ctx, 1, got.Services[1].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.True(t, res.Notified)
}

func TestRemoveLastLineRejected(t *testing.T) {
	f := newFixture()
	b := f.draft(t, LineInput{ServiceID: 21, Quantity: 1})
	_, err := f.workflow.RemoveLine(context.Background(), 1, 5, b.ID, b.Services[0].ID)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRemindStale(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()
	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.NoError(t, err)

	sent, err := f.workflow.RemindStale(ctx, ReminderAge)
	require.NoError(t, err)
	assert.Zero(t, sent)

	f.workflow.now = func() time.Time { return testNow.Add(49 * time.Hour) }
	sent, err = f.workflow.RemindStale(ctx, ReminderAge)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	requests := f.queue.byTemplate(notify.TemplateProviderRequest)
	reminder := requests[len(requests)-1]
	assert.Equal(t, true, reminder.Data["Reminder"])
	assert.Equal(t, []string{"sahara@example.com"}, reminder.To)

	sent, err = f.workflow.RemindStale(ctx, ReminderAge)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	b := f.requested(t)
	ctx := context.Background()

	require.NoError(t, f.workflow.Cancel(ctx, 1, 5, b.ID))
	got, _ := f.repo.Get(ctx, 1, b.ID)
	assert.Equal(t, StatusCancelled, got.Status)

	require.ErrorIs(t, f.workflow.Cancel(ctx, 1, 5, b.ID), ErrInvalidState)
	_, err := f.workflow.Respond(ctx, 1, b.Services[0].ID, RespondInput{Decision: DecisionAccepted}, Actor{})
	require.ErrorIs(t, err, ErrInvalidState)
}
