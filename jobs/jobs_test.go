package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/motorcrm/motorcrm/internal/jobs"
	"github.com/motorcrm/motorcrm/internal/notify"
	"github.com/motorcrm/motorcrm/internal/shared"
)

type fakeMailer struct {
	sent []notify.Email
	err  error
}

func (f *fakeMailer) Deliver(ctx context.Context, email notify.Email) (notify.SendResult, error) {
	if f.err != nil {
		return notify.SendResult{}, f.err
	}
	f.sent = append(f.sent, email)
	return notify.SendResult{MessageID: "msg-1"}, nil
}

type fakeKeys struct {
	pending map[string]time.Time
	done    map[string]bool
	now     time.Time
	cleaned time.Duration
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{pending: map[string]time.Time{}, done: map[string]bool{}, now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeKeys) Reserve(ctx context.Context, key, module string, lease time.Duration) error {
	if f.done[key] {
		return shared.ErrIdempotencyConflict
	}
	if at, ok := f.pending[key]; ok && f.now.Sub(at) < lease {
		return shared.ErrIdempotencyInFlight
	}
	f.pending[key] = f.now
	return nil
}

func (f *fakeKeys) Complete(ctx context.Context, key string) error {
	delete(f.pending, key)
	f.done[key] = true
	return nil
}

func (f *fakeKeys) Delete(ctx context.Context, key string) error {
	delete(f.pending, key)
	delete(f.done, key)
	return nil
}

func (f *fakeKeys) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.cleaned = olderThan
	return 4, nil
}

type fakeReminder struct {
	age       time.Duration
	err       error
	notifyErr error
	retried   int
}

func (f *fakeReminder) RemindStale(ctx context.Context, age time.Duration) (int, error) {
	f.age = age
	return 2, f.err
}

func (f *fakeReminder) RetryNotifications(ctx context.Context) (int, error) {
	f.retried++
	return 1, f.notifyErr
}

func emailTask(t *testing.T, email notify.Email) *asynq.Task {
	t.Helper()
	task, err := NewSendEmailTask(email)
	require.NoError(t, err)
	return task
}

func TestSendEmailIsIdempotent(t *testing.T) {
	mailer := &fakeMailer{}
	keys := newFakeKeys()
	p := NewProcessor(ProcessorConfig{Mailer: mailer, Keys: keys, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())})
	email := notify.Email{Template: notify.TemplateBookingConfirmed, To: []string{"guest@example.com"}, Key: "booking-confirmed-7"}

	require.NoError(t, p.HandleSendEmail(context.Background(), emailTask(t, email)))
	require.NoError(t, p.HandleSendEmail(context.Background(), emailTask(t, email)))
	assert.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"guest@example.com"}, mailer.sent[0].To)
}

func TestSendEmailFailureReleasesKey(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("provider down")}
	keys := newFakeKeys()
	p := NewProcessor(ProcessorConfig{Mailer: mailer, Keys: keys})
	email := notify.Email{Template: notify.TemplateProviderRequest, To: []string{"riad@example.com"}, Key: "request-3"}

	err := p.HandleSendEmail(context.Background(), emailTask(t, email))
	require.Error(t, err)
	assert.NotContains(t, keys.pending, "request-3")
	assert.False(t, keys.done["request-3"])

	mailer.err = nil
	require.NoError(t, p.HandleSendEmail(context.Background(), emailTask(t, email)))
	assert.Len(t, mailer.sent, 1)
}

func TestSendEmailResendsAfterAbandonedReservation(t *testing.T) {
	mailer := &fakeMailer{}
	keys := newFakeKeys()
	p := NewProcessor(ProcessorConfig{Mailer: mailer, Keys: keys})
	email := notify.Email{Template: notify.TemplateBookingConfirmed, To: []string{"guest@example.com"}, Key: "booking-confirmed-9"}
	require.NoError(t, keys.Reserve(context.Background(), email.Key, mailModule, SendLease))

	err := p.HandleSendEmail(context.Background(), emailTask(t, email))
	require.ErrorIs(t, err, shared.ErrIdempotencyInFlight)
	assert.Empty(t, mailer.sent)

	keys.now = keys.now.Add(SendLease + time.Minute)
	require.NoError(t, p.HandleSendEmail(context.Background(), emailTask(t, email)))
	assert.Len(t, mailer.sent, 1)
	assert.True(t, keys.done[email.Key])
}

func TestSendEmailRejectsGarbage(t *testing.T) {
	p := NewProcessor(ProcessorConfig{Mailer: &fakeMailer{}})
	err := p.HandleSendEmail(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRemindUsesConfiguredAge(t *testing.T) {
	reminder := &fakeReminder{}
	p := NewProcessor(ProcessorConfig{Reminder: reminder, ReminderAge: 48 * time.Hour})
	require.NoError(t, p.HandleRemind(context.Background(), nil))
	assert.Equal(t, 48*time.Hour, reminder.age)

	reminder.err = errors.New("db down")
	assert.Error(t, p.HandleRemind(context.Background(), nil))
}

func TestRemindRetriesNotificationsEvenWhenRemindFails(t *testing.T) {
	reminder := &fakeReminder{err: errors.New("db down")}
	p := NewProcessor(ProcessorConfig{Reminder: reminder})
	assert.Error(t, p.HandleRemind(context.Background(), nil))
	assert.Equal(t, 1, reminder.retried)

	reminder.err = nil
	reminder.notifyErr = errors.New("redis unavailable")
	assert.Error(t, p.HandleRemind(context.Background(), nil))
	assert.Equal(t, 2, reminder.retried)
}

func TestCleanupKeepsOneWeek(t *testing.T) {
	keys := newFakeKeys()
	p := NewProcessor(ProcessorConfig{Keys: keys})
	require.NoError(t, p.HandleCleanup(context.Background(), nil))
	assert.Equal(t, 7*24*time.Hour, keys.cleaned)
}

func TestHandlersCoverEveryTask(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	var types []string
	for _, h := range p.Handlers() {
		types = append(types, h.Type)
	}
	assert.ElementsMatch(t, []string{TaskTypeSendEmail, TaskBookingsRemind, TaskMaintenanceCleanup}, types)
}

func TestDefaultSchedule(t *testing.T) {
	entries, err := DefaultSchedule()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0 * * * *", entries[0].Spec)
	assert.Equal(t, TaskBookingsRemind, entries[0].Task.Type())
	assert.Equal(t, "30 3 * * *", entries[1].Spec)
	assert.Equal(t, TaskMaintenanceCleanup, entries[1].Task.Type())
}

func TestNewTaskRejectsUnknownType(t *testing.T) {
	_, err := NewTask("mail:send")
	assert.Error(t, err)
}

func TestSendEmailTaskCarriesEmail(t *testing.T) {
	task := emailTask(t, notify.Email{Template: "x", To: []string{"a@b.c"}, Locale: "fr", Data: map[string]any{"Doc": "BK-1"}})
	var decoded notify.Email
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "fr", decoded.Locale)
	assert.Equal(t, "BK-1", decoded.Data["Doc"])
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsQueueDepth(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}}, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Pending)
	assert.Equal(t, 1, body.Retry)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
