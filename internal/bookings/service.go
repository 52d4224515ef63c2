package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/services"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Catalog resolves service lines against the trip service catalog.
type Catalog interface {
	GetMany(ctx context.Context, orgID int64, ids []int64) (map[int64]services.Service, error)
}

// InvoiceRenderer produces the invoice PDF.
type InvoiceRenderer interface {
	Invoice(ctx context.Context, data documents.InvoiceData) ([]byte, error)
}

// Service manages booking drafts. Request and response handling lives in Workflow.
type Service struct {
	repo     Repository
	catalog  Catalog
	audit    AuditPort
	renderer InvoiceRenderer
	now      func() time.Time
}

// NewService constructs a Service. audit and renderer may be nil.
func NewService(repo Repository, catalog Catalog, audit AuditPort, renderer InvoiceRenderer) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, renderer: renderer, now: time.Now}
}

func normalize(in BookingInput) BookingInput {
	in.TripStart = truncateDay(in.TripStart)
	in.TripEnd = truncateDay(in.TripEnd)
	if in.Notes != nil {
		in.Notes = shared.OptionalString(*in.Notes)
	}
	return in
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validate(in BookingInput) error {
	if err := shared.Validate.Struct(in); err != nil {
		return err
	}
	if in.TripEnd.Before(in.TripStart) {
		return fmt.Errorf("%w: trip end must not be before trip start", ErrInvalidInput)
	}
	return nil
}

// resolveLines prices lines from the catalog. Inactive services cannot be booked.
func (s *Service) resolveLines(ctx context.Context, orgID int64, inputs []LineInput) ([]BookingService, error) {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ServiceID)
	}
	catalog, err := s.catalog.GetMany(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	lines := make([]BookingService, 0, len(inputs))
	for _, in := range inputs {
		svc, ok := catalog[in.ServiceID]
		if !ok || !svc.IsActive {
			return nil, fmt.Errorf("%w: service %d is not available", ErrInvalidInput, in.ServiceID)
		}
		lines = append(lines, BookingService{
			ServiceID:     svc.ID,
			ServiceName:   svc.Name,
			ProviderName:  svc.ProviderName,
			ProviderEmail: svc.ProviderEmail,
			Quantity:      in.Quantity,
			UnitPrice:     svc.UnitPrice,
			UnitCost:      svc.UnitCost,
			Status:        LinePending,
		})
	}
	return lines, nil
}

// Create opens a DRAFT booking with its service lines.
func (s *Service) Create(ctx context.Context, orgID, actorID int64, in BookingInput) (*Booking, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}
	lines, err := s.resolveLines(ctx, orgID, in.Lines)
	if err != nil {
		return nil, err
	}
	var bookingID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.CustomerExists(ctx, orgID, in.CustomerID)
		if err != nil {
			return fmt.Errorf("check customer: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: customer not found", ErrInvalidInput)
		}
		docNumber, err := repo.NextDocNumber(ctx, orgID, s.now())
		if err != nil {
			return err
		}
		bookingID, err = repo.Create(ctx, Booking{
			OrganizationID: orgID,
			DocNumber:      docNumber,
			CustomerID:     in.CustomerID,
			TripStart:      in.TripStart,
			TripEnd:        in.TripEnd,
			Pax:            in.Pax,
			Status:         StatusDraft,
			Notes:          in.Notes,
			CreatedBy:      actorRef(actorID),
		})
		if err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		for _, line := range lines {
			line.BookingID = bookingID
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert booking service: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "booking.create", bookingID, map[string]any{"services": len(lines)})
	return s.repo.Get(ctx, orgID, bookingID)
}

// Update replaces the header and lines of a DRAFT booking.
func (s *Service) Update(ctx context.Context, orgID, actorID, id int64, in BookingInput) (*Booking, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}
	lines, err := s.resolveLines(ctx, orgID, in.Lines)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.LockBooking(ctx, orgID, id)
		if err != nil {
			return err
		}
		if !current.Editable() {
			return fmt.Errorf("%w: only draft bookings can be edited", ErrInvalidState)
		}
		if in.CustomerID != current.CustomerID {
			ok, err := repo.CustomerExists(ctx, orgID, in.CustomerID)
			if err != nil {
				return fmt.Errorf("check customer: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: customer not found", ErrInvalidInput)
			}
		}
		current.CustomerID = in.CustomerID
		current.TripStart = in.TripStart
		current.TripEnd = in.TripEnd
		current.Pax = in.Pax
		current.Notes = in.Notes
		if err := repo.UpdateHeader(ctx, *current); err != nil {
			return err
		}
		if err := repo.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range lines {
			line.BookingID = id
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert booking service: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "booking.update", id, nil)
	return s.repo.Get(ctx, orgID, id)
}

// AddLine appends a service to a DRAFT or NEEDS_ATTENTION booking.
func (s *Service) AddLine(ctx context.Context, orgID, actorID, id int64, in LineInput) (*Booking, error) {
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	lines, err := s.resolveLines(ctx, orgID, []LineInput{in})
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		booking, err := repo.LockBooking(ctx, orgID, id)
		if err != nil {
			return err
		}
		if !booking.LinesEditable() {
			return fmt.Errorf("%w: services can only be added to draft bookings or bookings needing attention", ErrInvalidState)
		}
		line := lines[0]
		line.BookingID = id
		_, err = repo.InsertLine(ctx, line)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "booking.add_service", id, map[string]any{"service_id": in.ServiceID})
	return s.repo.Get(ctx, orgID, id)
}

// Get returns a booking with its lines.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*Booking, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a page of bookings without lines.
func (s *Service) List(ctx context.Context, req ListBookingsRequest) ([]Booking, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return s.repo.List(ctx, req)
}

// Invoice renders the invoice PDF of the accepted lines.
func (s *Service) Invoice(ctx context.Context, orgID, id int64, locale language.Tag) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", fmt.Errorf("%w: no renderer configured", documents.ErrRenderFailed)
	}
	booking, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, "", err
	}
	contact, err := s.repo.Contact(ctx, orgID, id)
	if err != nil {
		return nil, "", err
	}
	data := InvoiceData(booking, contact, s.now())
	if data.Lines == nil {
		return nil, "", fmt.Errorf("%w: no accepted services to invoice", ErrInvalidState)
	}
	data.Locale = locale
	if locale == language.Und {
		data.Locale = language.Make(contact.Locale)
	}
	pdf, err := s.renderer.Invoice(ctx, data)
	if err != nil {
		return nil, "", err
	}
	return pdf, booking.DocNumber + ".pdf", nil
}

// InvoiceData lists the accepted lines of booking.
func InvoiceData(b *Booking, c *Contact, at time.Time) documents.InvoiceData {
	data := documents.InvoiceData{
		Organization: c.Organization,
		DocNumber:    b.DocNumber,
		Date:         at,
		Customer: documents.Party{
			Code:    c.CustomerCode,
			Name:    c.CustomerName,
			Email:   deref(c.CustomerEmail),
			Phone:   deref(c.Phone),
			Address: deref(c.Address),
		},
		TripStart: b.TripStart,
		TripEnd:   b.TripEnd,
		Pax:       b.Pax,
		Total:     b.AcceptedTotal(),
	}
	for _, l := range b.Services {
		if l.Status != LineAccepted {
			continue
		}
		data.Lines = append(data.Lines, documents.InvoiceLine{
			Name:      l.ServiceName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     l.Total(),
		})
	}
	return data
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func actorRef(actorID int64) *int64 {
	if actorID <= 0 {
		return nil
	}
	return &actorID
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "booking",
		EntityID:       fmt.Sprint(id),
		Meta:           meta,
	})
}
