package zones

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// Service holds zone business rules.
type Service struct {
	repo  Repository
	audit AuditPort
}

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func normalize(in ZoneInput) ZoneInput {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// Create validates and stores a new zone.
func (s *Service) Create(ctx context.Context, orgID, actorID int64, in ZoneInput) (*Zone, error) {
	in = normalize(in)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByCode(ctx, orgID, in.Code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing zone: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: zone code %s already exists", ErrAlreadyExists, in.Code)
	}
	zone := Zone{OrganizationID: orgID, Code: in.Code, Name: in.Name, Description: in.Description, IsActive: in.IsActive}
	id, err := s.repo.Create(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("create zone: %w", err)
	}
	zone.ID = id
	s.record(ctx, orgID, actorID, "zone.created", id, map[string]any{"code": zone.Code})
	return &zone, nil
}

// Update edits an existing zone.
func (s *Service) Update(ctx context.Context, orgID, actorID, id int64, in ZoneInput) (*Zone, error) {
	in = normalize(in)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	zone, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if in.Code != zone.Code {
		other, err := s.repo.GetByCode(ctx, orgID, in.Code)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check existing zone: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, fmt.Errorf("%w: zone code %s already exists", ErrAlreadyExists, in.Code)
		}
	}
	zone.Code, zone.Name, zone.Description, zone.IsActive = in.Code, in.Name, in.Description, in.IsActive
	if err := s.repo.Update(ctx, *zone); err != nil {
		return nil, fmt.Errorf("update zone: %w", err)
	}
	s.record(ctx, orgID, actorID, "zone.updated", id, nil)
	return zone, nil
}

// Delete removes a zone that nothing references.
func (s *Service) Delete(ctx context.Context, orgID, actorID, id int64) error {
	if _, err := s.repo.Get(ctx, orgID, id); err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, orgID, id)
	if err != nil {
		return fmt.Errorf("count zone references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d records still use this zone", ErrInUse, refs)
	}
	if err := s.repo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "zone.deleted", id, nil)
	return nil
}

// Get returns one zone.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*Zone, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a filtered page of zones.
func (s *Service) List(ctx context.Context, req ListZonesRequest) ([]Zone, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return s.repo.List(ctx, req)
}

// Options lists active zones for select boxes.
func (s *Service) Options(ctx context.Context, orgID int64) ([]Zone, error) {
	return s.repo.ListActive(ctx, orgID)
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "zone",
		EntityID:       fmt.Sprint(id),
		Meta:           meta,
	})
}
