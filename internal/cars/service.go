package cars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// MinYear is the oldest model year accepted in stock.
const MinYear = 1950

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service holds car stock rules.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// ManualTransitionAllowed reports whether staff may move a car from one status to
// another through the edit form. Deals own RESERVED and SOLD.
func ManualTransitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	manual := func(s Status) bool { return s == StatusAvailable || s == StatusMaintenance }
	return manual(from) && manual(to)
}

func (s *Service) validate(in CarInput) error {
	if err := shared.Validate.Struct(in); err != nil {
		return err
	}
	maxYear := s.now().Year() + 1
	if in.Year < MinYear || in.Year > maxYear {
		return fmt.Errorf("%w: year must be between %d and %d", ErrInvalidInput, MinYear, maxYear)
	}
	return nil
}

func normalize(in CarInput) CarInput {
	in.VIN = strings.ToUpper(strings.TrimSpace(in.VIN))
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.Price = in.Price.Round(2)
	if in.Status == "" {
		in.Status = StatusAvailable
	}
	return in
}

// Create registers a car. New cars start AVAILABLE or in MAINTENANCE.
func (s *Service) Create(ctx context.Context, orgID, actorID int64, in CarInput) (*Car, error) {
	in = normalize(in)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if !ManualTransitionAllowed(StatusAvailable, in.Status) {
		return nil, fmt.Errorf("%w: new cars must be available or in maintenance", ErrInvalidStatus)
	}
	existing, err := s.repo.GetByVIN(ctx, orgID, in.VIN)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing car: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: VIN %s is already registered", ErrAlreadyExists, in.VIN)
	}
	car := apply(Car{OrganizationID: orgID}, in)
	id, err := s.repo.Create(ctx, car)
	if err != nil {
		return nil, fmt.Errorf("create car: %w", err)
	}
	car.ID = id
	s.record(ctx, orgID, actorID, "car.created", id, map[string]any{"vin": car.VIN})
	return &car, nil
}

// Update edits a car. Status changes are limited to AVAILABLE and MAINTENANCE.
func (s *Service) Update(ctx context.Context, orgID, actorID, id int64, in CarInput) (*Car, error) {
	in = normalize(in)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	current, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !ManualTransitionAllowed(current.Status, in.Status) {
		return nil, fmt.Errorf("%w: a %s car cannot be set to %s manually", ErrInvalidStatus, strings.ToLower(string(current.Status)), strings.ToLower(string(in.Status)))
	}
	if in.VIN != current.VIN {
		other, err := s.repo.GetByVIN(ctx, orgID, in.VIN)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check existing car: %w", err)
		}
		if other != nil {
			return nil, fmt.Errorf("%w: VIN %s is already registered", ErrAlreadyExists, in.VIN)
		}
	}
	updated := apply(*current, in)
	if err := s.repo.Update(ctx, updated, current.Status); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			return nil, err
		}
		return nil, fmt.Errorf("update car: %w", err)
	}
	var meta map[string]any
	if current.Status != updated.Status {
		meta = map[string]any{"from": current.Status, "to": updated.Status}
	}
	s.record(ctx, orgID, actorID, "car.updated", id, meta)
	return &updated, nil
}

// Delete removes a car not referenced by deals.
func (s *Service) Delete(ctx context.Context, orgID, actorID, id int64) error {
	if err := s.repo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "car.deleted", id, nil)
	return nil
}

// Get returns one car.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*Car, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a filtered page of cars.
func (s *Service) List(ctx context.Context, req ListCarsRequest) ([]Car, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return s.repo.List(ctx, req)
}

// Available lists cars that can be put on a new deal.
func (s *Service) Available(ctx context.Context, orgID int64) ([]Car, error) {
	out, _, err := s.repo.List(ctx, ListCarsRequest{OrganizationID: orgID, Status: StatusAvailable, Limit: 1000})
	return out, err
}

func apply(c Car, in CarInput) Car {
	c.VIN = in.VIN
	c.Make = in.Make
	c.Model = in.Model
	c.Year = in.Year
	c.Color = in.Color
	c.Mileage = in.Mileage
	c.Price = in.Price
	c.Status = in.Status
	c.ZoneID = in.ZoneID
	c.Notes = in.Notes
	return c
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "car",
		EntityID:       fmt.Sprint(id),
		Meta:           meta,
	})
}
