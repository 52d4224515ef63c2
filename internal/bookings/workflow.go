package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/motorcrm/motorcrm/internal/notify"
	"github.com/motorcrm/motorcrm/internal/revenue"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// ReminderAge is how long a line may stay PENDING before its provider is reminded.
const ReminderAge = 48 * time.Hour

const reminderBatch = 200

// EmailQueue hands emails to the background mailer.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, email notify.Email) error
}

// OutcomeRecorder counts response outcomes.
type OutcomeRecorder interface {
	RecordResponse(outcome string)
}

// Actor identifies who answered a service request. UserID is zero for providers
// answering through their emailed link.
type Actor struct {
	UserID int64
}

// Provider reports whether the answer came through a respond link.
func (a Actor) Provider() bool {
	return a.UserID <= 0
}

func (a Actor) String() string {
	if a.Provider() {
		return "provider"
	}
	return "user:" + strconv.FormatInt(a.UserID, 10)
}

// Workflow drives a booking from draft to confirmation: it sends provider requests,
// records answers and notifies the customer once every service has answered.
type Workflow struct {
	repo    Repository
	queue   EmailQueue
	tokens  *TokenSigner
	baseURL string
	metrics OutcomeRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewWorkflow constructs a Workflow. metrics may be nil.
func NewWorkflow(repo Repository, queue EmailQueue, tokens *TokenSigner, baseURL string, metrics OutcomeRecorder, logger *slog.Logger) *Workflow {
	return &Workflow{
		repo:    repo,
		queue:   queue,
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Tokens exposes the signer used for respond links.
func (w *Workflow) Tokens() *TokenSigner {
	return w.tokens
}

// SendRequests moves the booking to REQUESTED and emails every PENDING line's
// provider a respond link. Declined lines must be removed first. Calling it on a
// REQUESTED booking re-sends the pending requests.
func (w *Workflow) SendRequests(ctx context.Context, orgID, actorID, id int64) (int, error) {
	now := w.now()
	var booking *Booking
	var pending []BookingService
	err := w.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		booking, err = repo.LockBooking(ctx, orgID, id)
		if err != nil {
			return err
		}
		switch booking.Status {
		case StatusDraft, StatusNeedsAttention, StatusRequested:
		default:
			return fmt.Errorf("%w: requests cannot be sent for a %s booking", ErrInvalidState, statusWord(booking.Status))
		}
		lines, err := repo.Lines(ctx, id)
		if err != nil {
			return err
		}
		booking.Services = lines
		acc := Aggregate(lines)
		if acc.Declined > 0 {
			return fmt.Errorf("%w: remove or replace declined services before sending", ErrInvalidState)
		}
		for _, l := range lines {
			if l.Status == LinePending {
				pending = append(pending, l)
			}
		}
		if len(pending) == 0 {
			return fmt.Errorf("%w: no pending services to request", ErrInvalidState)
		}
		if booking.Status != StatusRequested {
			if err := repo.SetStatus(ctx, orgID, id, StatusRequested); err != nil {
				return err
			}
			if err := repo.MarkRequested(ctx, id, now); err != nil {
				return err
			}
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			OrganizationID: orgID,
			ActorID:        actorID,
			Action:         "booking.send_requests",
			Entity:         "booking",
			EntityID:       strconv.FormatInt(id, 10),
			Meta:           map[string]any{"services": len(pending), "from": booking.Status},
		})
	})
	if err != nil {
		return 0, err
	}

	contact, err := w.repo.Contact(ctx, orgID, id)
	if err != nil {
		return 0, err
	}
	sent := 0
	var errs []error
	for _, line := range pending {
		if err := w.enqueueRequest(ctx, booking, line, contact, false, now); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if len(errs) > 0 {
		w.logger.Error("enqueue provider requests", slog.Any("error", errors.Join(errs...)), slog.Int64("booking_id", id))
		return sent, fmt.Errorf("%d of %d requests could not be queued: %w", len(errs), len(pending), errors.Join(errs...))
	}
	return sent, nil
}

// Respond stores a provider decision for one booking service line. When it was the
// last pending line, the booking is settled and the customer is notified once.
func (w *Workflow) Respond(ctx context.Context, orgID, lineID int64, in RespondInput, actor Actor) (*RespondResult, error) {
	in.Decision = Decision(strings.ToLower(strings.TrimSpace(string(in.Decision))))
	in.Note = strings.TrimSpace(in.Note)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	now := w.now()
	result := &RespondResult{}
	var claimed bool
	var booking *Booking
	err := w.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		bookingID, err := repo.LineBooking(ctx, orgID, lineID)
		if err != nil {
			return err
		}
		booking, err = repo.LockBooking(ctx, orgID, bookingID)
		if err != nil {
			return err
		}
		line, err := repo.LockLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.Status != LinePending {
			return fmt.Errorf("%w: this service was already %s", ErrAlreadyResponded, strings.ToLower(string(line.Status)))
		}
		if booking.Status != StatusRequested {
			return fmt.Errorf("%w: booking is %s", ErrInvalidState, statusWord(booking.Status))
		}
		if err := repo.SetLineDecision(ctx, lineID, in.Decision.LineStatus(), shared.OptionalString(in.Note), now); err != nil {
			return fmt.Errorf("store decision: %w", err)
		}

		lines, err := repo.Lines(ctx, bookingID)
		if err != nil {
			return err
		}
		booking.Services = lines
		acc := Aggregate(lines)
		result.BookingID = bookingID
		result.Acceptance = acc
		result.Status = booking.Status
		if acc.Complete() {
			result.Status = acc.Outcome()
			if claimed, err = w.settle(ctx, repo, booking, result.Status, actor.UserID, now); err != nil {
				return err
			}
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			OrganizationID: orgID,
			ActorID:        actor.UserID,
			Action:         "booking.respond",
			Entity:         "booking_service",
			EntityID:       strconv.FormatInt(lineID, 10),
			Meta: map[string]any{
				"booking_id": bookingID,
				"decision":   in.Decision,
				"actor":      actor.String(),
				"status":     result.Status,
			},
			At: now,
		})
	})
	if err != nil {
		return nil, err
	}
	w.count(string(in.Decision))
	if result.Status != StatusRequested {
		w.count(strings.ToLower(string(result.Status)))
	}
	if claimed {
		booking.Status = result.Status
		result.Notified = w.notifyCustomer(ctx, booking)
	}
	return result, nil
}

// RemoveLine deletes a line of a DRAFT or NEEDS_ATTENTION booking. Accepted lines of a
// booking needing attention stay. When only accepted lines remain the booking settles
// as CONFIRMED.
func (w *Workflow) RemoveLine(ctx context.Context, orgID, actorID, id, lineID int64) (*Booking, error) {
	now := w.now()
	var claimed bool
	var booking *Booking
	err := w.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		booking, err = repo.LockBooking(ctx, orgID, id)
		if err != nil {
			return err
		}
		if !booking.LinesEditable() {
			return fmt.Errorf("%w: services can only be removed from draft bookings or bookings needing attention", ErrInvalidState)
		}
		lines, err := repo.Lines(ctx, id)
		if err != nil {
			return err
		}
		var target *BookingService
		for i := range lines {
			if lines[i].ID == lineID {
				target = &lines[i]
			}
		}
		if target == nil {
			return fmt.Errorf("%w: service line not found", ErrNotFound)
		}
		if booking.Status == StatusNeedsAttention && target.Status == LineAccepted {
			return fmt.Errorf("%w: accepted services cannot be removed", ErrInvalidState)
		}
		if len(lines) == 1 {
			return fmt.Errorf("%w: a booking needs at least one service", ErrInvalidInput)
		}
		if err := repo.DeleteLine(ctx, id, lineID); err != nil {
			return err
		}
		remaining := make([]BookingService, 0, len(lines)-1)
		for _, l := range lines {
			if l.ID != lineID {
				remaining = append(remaining, l)
			}
		}
		booking.Services = remaining
		if booking.Status == StatusNeedsAttention {
			if acc := Aggregate(remaining); acc.Complete() && acc.Outcome() == StatusConfirmed {
				if err := repo.ReleaseConfirmation(ctx, id); err != nil {
					return err
				}
				if claimed, err = w.settle(ctx, repo, booking, StatusConfirmed, actorID, now); err != nil {
					return err
				}
				booking.Status = StatusConfirmed
			}
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			OrganizationID: orgID,
			ActorID:        actorID,
			Action:         "booking.remove_service",
			Entity:         "booking",
			EntityID:       strconv.FormatInt(id, 10),
			Meta:           map[string]any{"line_id": lineID, "service": target.ServiceName},
			At:             now,
		})
	})
	if err != nil {
		return nil, err
	}
	if claimed {
		w.count(strings.ToLower(string(StatusConfirmed)))
		w.notifyCustomer(ctx, booking)
	}
	return w.repo.Get(ctx, orgID, id)
}

// Cancel moves a booking that is not final to CANCELLED.
func (w *Workflow) Cancel(ctx context.Context, orgID, actorID, id int64) error {
	return w.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		booking, err := repo.LockBooking(ctx, orgID, id)
		if err != nil {
			return err
		}
		if booking.Status.Final() {
			return fmt.Errorf("%w: a %s booking cannot be cancelled", ErrInvalidState, statusWord(booking.Status))
		}
		if err := repo.SetStatus(ctx, orgID, id, StatusCancelled); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			OrganizationID: orgID,
			ActorID:        actorID,
			Action:         "booking.cancel",
			Entity:         "booking",
			EntityID:       strconv.FormatInt(id, 10),
			Meta:           map[string]any{"from": booking.Status},
		})
	})
}

// RemindStale re-sends requests for lines PENDING longer than age and returns how
// many reminders were queued.
func (w *Workflow) RemindStale(ctx context.Context, age time.Duration) (int, error) {
	now := w.now()
	stale, err := w.repo.StaleLines(ctx, now.Add(-age), reminderBatch)
	if err != nil {
		return 0, fmt.Errorf("load stale lines: %w", err)
	}
	type key struct{ org, booking int64 }
	bookings := map[key]*Booking{}
	contacts := map[key]*Contact{}
	sent := 0
	var errs []error
	for _, s := range stale {
		k := key{s.OrganizationID, s.BookingID}
		booking, ok := bookings[k]
		if !ok {
			if booking, err = w.repo.Get(ctx, s.OrganizationID, s.BookingID); err != nil {
				errs = append(errs, err)
				continue
			}
			bookings[k] = booking
			if contacts[k], err = w.repo.Contact(ctx, s.OrganizationID, s.BookingID); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		contact := contacts[k]
		if contact == nil {
			continue
		}
		for _, line := range booking.Services {
			if line.ID != s.LineID || line.Status != LinePending {
				continue
			}
			if err := w.enqueueRequest(ctx, booking, line, contact, true, now); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := w.repo.MarkReminded(ctx, line.ID, now); err != nil {
				errs = append(errs, err)
				continue
			}
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// RetryNotifications claims again the settled bookings whose customer email could
// not be queued and queues it. It returns how many emails were queued.
func (w *Workflow) RetryNotifications(ctx context.Context) (int, error) {
	owed, err := w.repo.Unnotified(ctx, reminderBatch)
	if err != nil {
		return 0, fmt.Errorf("load unnotified bookings: %w", err)
	}
	sent := 0
	var errs []error
	for _, o := range owed {
		var claimed bool
		err := w.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			booking, err := repo.LockBooking(ctx, o.OrganizationID, o.BookingID)
			if err != nil {
				return err
			}
			if booking.Status != StatusConfirmed && booking.Status != StatusNeedsAttention {
				return nil
			}
			claimed, err = repo.ClaimConfirmation(ctx, booking.ID, w.now())
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("booking %d: %w", o.BookingID, err))
			continue
		}
		if !claimed {
			continue
		}
		booking, err := w.repo.Get(ctx, o.OrganizationID, o.BookingID)
		if err != nil {
			w.releaseClaim(ctx, &Booking{ID: o.BookingID, OrganizationID: o.OrganizationID}, err)
			errs = append(errs, err)
			continue
		}
		if w.notifyCustomer(ctx, booking) {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// settle stores the final status of a booking whose lines have all answered and
// claims its confirmation email. Confirmed bookings book their accepted total as income.
func (w *Workflow) settle(ctx context.Context, repo Repository, booking *Booking, status Status, actorID int64, now time.Time) (bool, error) {
	if err := repo.SetStatus(ctx, booking.OrganizationID, booking.ID, status); err != nil {
		return false, err
	}
	claimed, err := repo.ClaimConfirmation(ctx, booking.ID, now)
	if err != nil {
		return false, fmt.Errorf("claim confirmation: %w", err)
	}
	if status == StatusConfirmed {
		ref := booking.ID
		if _, err := repo.RecordIncome(ctx, revenue.Transaction{
			OrganizationID: booking.OrganizationID,
			Kind:           revenue.KindIncome,
			Source:         revenue.SourceBooking,
			RefID:          &ref,
			Amount:         booking.AcceptedTotal(),
			OccurredOn:     now,
			Description:    "Booking " + booking.DocNumber,
			CreatedBy:      actorID,
		}); err != nil {
			return false, err
		}
	}
	return claimed, nil
}

// notifyCustomer queues the confirmation or needs-changes email. On failure the claim
// is released so the next answer or resend retries.
func (w *Workflow) notifyCustomer(ctx context.Context, booking *Booking) bool {
	contact, err := w.repo.Contact(ctx, booking.OrganizationID, booking.ID)
	if err != nil {
		w.releaseClaim(ctx, booking, err)
		return false
	}
	if contact.CustomerEmail == nil || strings.TrimSpace(*contact.CustomerEmail) == "" {
		w.logger.Warn("booking customer has no email", slog.Int64("booking_id", booking.ID))
		return false
	}
	email := customerEmail(booking, contact, w.now())
	if err := w.queue.EnqueueEmail(ctx, email); err != nil {
		w.releaseClaim(ctx, booking, err)
		return false
	}
	return true
}

func (w *Workflow) releaseClaim(ctx context.Context, booking *Booking, cause error) {
	w.count("notify_failed")
	w.logger.Error("queue booking notification", slog.Any("error", cause), slog.Int64("booking_id", booking.ID))
	if err := w.repo.ReleaseConfirmation(ctx, booking.ID); err != nil {
		w.logger.Error("release confirmation claim", slog.Any("error", err), slog.Int64("booking_id", booking.ID))
	}
}

func (w *Workflow) enqueueRequest(ctx context.Context, booking *Booking, line BookingService, contact *Contact, reminder bool, now time.Time) error {
	token, expires, err := w.tokens.Sign(booking.OrganizationID, booking.ID, line.ID)
	if err != nil {
		return err
	}
	kind := "request"
	if reminder {
		kind = "remind"
	}
	return w.queue.EnqueueEmail(ctx, notify.Email{
		Template: notify.TemplateProviderRequest,
		To:       []string{line.ProviderEmail},
		Locale:   contact.Locale,
		Key:      fmt.Sprintf("%s:%d:%d", kind, line.ID, now.Unix()),
		Data: map[string]any{
			"ProviderName":  line.ProviderName,
			"Organization":  contact.Organization,
			"BookingNumber": booking.DocNumber,
			"ServiceName":   line.ServiceName,
			"Quantity":      strconv.Itoa(line.Quantity),
			"TripStart":     view.FormatDay(booking.TripStart),
			"TripEnd":       view.FormatDay(booking.TripEnd),
			"Pax":           strconv.Itoa(booking.Pax),
			"Link":          w.RespondURL(token),
			"ExpiresOn":     view.FormatDay(expires),
			"Reminder":      reminder,
		},
	})
}

// RespondURL is the public link a provider follows to answer.
func (w *Workflow) RespondURL(token string) string {
	return w.baseURL + "/respond/" + token
}

func customerEmail(booking *Booking, contact *Contact, now time.Time) notify.Email {
	template := notify.TemplateBookingConfirmed
	var lines []map[string]any
	for _, l := range booking.Services {
		switch {
		case booking.Status == StatusConfirmed && l.Status == LineAccepted:
			lines = append(lines, map[string]any{"Name": l.ServiceName, "Quantity": strconv.Itoa(l.Quantity)})
		case booking.Status == StatusNeedsAttention && l.Status == LineDeclined:
			lines = append(lines, map[string]any{"Name": l.ServiceName, "Note": deref(l.ResponseNote)})
		}
	}
	if booking.Status == StatusNeedsAttention {
		template = notify.TemplateBookingNeedsChanges
	}
	return notify.Email{
		Template: template,
		To:       []string{*contact.CustomerEmail},
		Locale:   contact.Locale,
		Key:      fmt.Sprintf("booking:%d:%s:%d", booking.ID, strings.ToLower(string(booking.Status)), now.Unix()),
		Data: map[string]any{
			"CustomerName":  contact.CustomerName,
			"Organization":  contact.Organization,
			"BookingNumber": booking.DocNumber,
			"TripStart":     view.FormatDay(booking.TripStart),
			"TripEnd":       view.FormatDay(booking.TripEnd),
			"Lines":         lines,
			"Total":         view.Money(booking.AcceptedTotal()),
		},
	}
}

func (w *Workflow) count(outcome string) {
	if w.metrics != nil {
		w.metrics.RecordResponse(outcome)
	}
}

func statusWord(s Status) string {
	return strings.ReplaceAll(strings.ToLower(string(s)), "_", " ")
}
