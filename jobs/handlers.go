package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/motorcrm/motorcrm/internal/jobs"
	"github.com/motorcrm/motorcrm/internal/notify"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// KeyRetention is how long processed idempotency keys are kept.
const KeyRetention = 7 * 24 * time.Hour

const mailModule = "mail"

// Deliverer renders and sends an email.
type Deliverer interface {
	Deliver(ctx context.Context, email notify.Email) (notify.SendResult, error)
}

// SendLease is how long a reserved email key blocks other runs before a crashed
// run is presumed dead and the email may be sent again.
const SendLease = 10 * time.Minute

// KeyStore records idempotency keys as pending, then completed.
type KeyStore interface {
	Reserve(ctx context.Context, key, module string, lease time.Duration) error
	Complete(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Reminder re-sends requests for stale pending lines and customer emails that
// could not be queued when their booking settled.
type Reminder interface {
	RemindStale(ctx context.Context, age time.Duration) (int, error)
	RetryNotifications(ctx context.Context) (int, error)
}

// Processor executes the application tasks.
type Processor struct {
	mailer      Deliverer
	keys        KeyStore
	reminder    Reminder
	reminderAge time.Duration
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
}

// ProcessorConfig lists the task dependencies.
type ProcessorConfig struct {
	Mailer      Deliverer
	Keys        KeyStore
	Reminder    Reminder
	ReminderAge time.Duration
	Metrics     *jobmetrics.Metrics
	Logger      *slog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		mailer:      cfg.Mailer,
		keys:        cfg.Keys,
		reminder:    cfg.Reminder,
		reminderAge: cfg.ReminderAge,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Handlers returns the task handlers to register on the worker.
func (p *Processor) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskTypeSendEmail, Handler: p.HandleSendEmail},
		{Type: TaskBookingsRemind, Handler: p.HandleRemind},
		{Type: TaskMaintenanceCleanup, Handler: p.HandleCleanup},
	}
}

// HandleSendEmail delivers a mail:send task. The key is reserved before sending and
// completed after; only a completed key is acknowledged without sending again.
func (p *Processor) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var email notify.Email
	if err := json.Unmarshal(t.Payload(), &email); err != nil {
		p.logger.Error("decode email task", slog.Any("error", err))
		return fmt.Errorf("decode email: %v: %w", err, asynq.SkipRetry)
	}
	tracker := p.metrics.Track(TaskTypeSendEmail)

	keyed := email.Key != "" && p.keys != nil
	if keyed {
		if err := p.keys.Reserve(ctx, email.Key, mailModule, SendLease); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				p.logger.Info("email already sent", slog.String("key", email.Key))
				return tracker.End(nil)
			}
			return tracker.End(err)
		}
	}

	_, err := p.mailer.Deliver(ctx, email)
	p.metrics.RecordEmail(email.Template, err)
	if err != nil {
		if keyed {
			if delErr := p.keys.Delete(ctx, email.Key); delErr != nil {
				p.logger.Warn("release email key", slog.Any("error", delErr))
			}
		}
		p.logger.Error("send email", slog.String("template", email.Template), slog.Any("error", err))
		return tracker.End(err)
	}
	if keyed {
		if err := p.keys.Complete(ctx, email.Key); err != nil {
			p.logger.Warn("complete email key", slog.String("key", email.Key), slog.Any("error", err))
		}
	}
	return tracker.End(nil)
}

// HandleRemind re-sends provider requests older than the reminder age and the
// customer emails still owed by settled bookings.
func (p *Processor) HandleRemind(ctx context.Context, _ *asynq.Task) error {
	if p.reminder == nil {
		return nil
	}
	tracker := p.metrics.Track(TaskBookingsRemind)
	n, remindErr := p.reminder.RemindStale(ctx, p.reminderAge)
	if remindErr != nil {
		p.logger.Error("remind providers", slog.Any("error", remindErr))
	}
	p.logger.Info("providers reminded", slog.Int("count", n))
	notified, notifyErr := p.reminder.RetryNotifications(ctx)
	if notifyErr != nil {
		p.logger.Error("retry customer notifications", slog.Any("error", notifyErr))
	}
	if notified > 0 {
		p.logger.Info("customer notifications retried", slog.Int("count", notified))
	}
	return tracker.End(errors.Join(remindErr, notifyErr))
}

// HandleCleanup deletes idempotency keys past retention.
func (p *Processor) HandleCleanup(ctx context.Context, _ *asynq.Task) error {
	if p.keys == nil {
		return nil
	}
	tracker := p.metrics.Track(TaskMaintenanceCleanup)
	n, err := p.keys.Cleanup(ctx, KeyRetention)
	if err != nil {
		p.logger.Error("cleanup idempotency keys", slog.Any("error", err))
		return tracker.End(err)
	}
	p.logger.Info("idempotency keys pruned", slog.Int64("count", n))
	return tracker.End(nil)
}

// DefaultSchedule is the cron table of the worker.
func DefaultSchedule() ([]CronRegistration, error) {
	remind, err := NewTask(TaskBookingsRemind)
	if err != nil {
		return nil, err
	}
	cleanup, err := NewTask(TaskMaintenanceCleanup)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "0 * * * *", Task: remind},
		{Spec: "30 3 * * *", Task: cleanup},
	}, nil
}
