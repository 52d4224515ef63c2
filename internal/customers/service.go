package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service holds customer business rules.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func normalize(in CustomerInput) CustomerInput {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = shared.OptionalString(e)
	}
	return in
}

// Create stores a new customer. An empty code gets the next suggestion.
func (s *Service) Create(ctx context.Context, orgID, actorID int64, in CustomerInput) (*Customer, error) {
	in = normalize(in)
	if in.Code == "" {
		code, err := s.repo.GenerateCode(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("generate customer code: %w", err)
		}
		in.Code = code
	}
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByCode(ctx, orgID, in.Code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing customer: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: customer code %s already exists", ErrAlreadyExists, in.Code)
	}
	c := apply(Customer{OrganizationID: orgID, CreatedBy: actorID}, in)
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	c.ID = id
	s.record(ctx, orgID, actorID, "customer.created", id)
	return &c, nil
}

// Update edits a customer.
func (s *Service) Update(ctx context.Context, orgID, actorID, id int64, in CustomerInput) (*Customer, error) {
	in = normalize(in)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	current, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if in.Code != current.Code {
		other, err := s.repo.GetByCode(ctx, orgID, in.Code)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check existing customer: %w", err)
		}
		if other != nil {
			return nil, fmt.Errorf("%w: customer code %s already exists", ErrAlreadyExists, in.Code)
		}
	}
	updated := apply(*current, in)
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	s.record(ctx, orgID, actorID, "customer.updated", id)
	return &updated, nil
}

// Delete removes a customer without deals or bookings.
func (s *Service) Delete(ctx context.Context, orgID, actorID, id int64) error {
	if err := s.repo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "customer.deleted", id)
	return nil
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*Customer, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a filtered page of customers.
func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return s.repo.List(ctx, req)
}

// Options lists active customers for select boxes.
func (s *Service) Options(ctx context.Context, orgID int64) ([]Customer, error) {
	active := true
	out, _, err := s.repo.List(ctx, ListCustomersRequest{OrganizationID: orgID, IsActive: &active, Limit: 1000})
	return out, err
}

// SuggestCode returns the next free-looking customer code.
func (s *Service) SuggestCode(ctx context.Context, orgID int64) (string, error) {
	return s.repo.GenerateCode(ctx, orgID)
}

func apply(c Customer, in CustomerInput) Customer {
	c.Code = in.Code
	c.FullName = in.FullName
	c.Email = in.Email
	c.Phone = in.Phone
	c.NationalID = in.NationalID
	c.Address = in.Address
	c.ZoneID = in.ZoneID
	c.Notes = in.Notes
	c.IsActive = in.IsActive
	return c
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "customer",
		EntityID:       fmt.Sprint(id),
	})
}
