package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Catalog holds the service catalog rules.
type Catalog struct {
	repo  Repository
	audit AuditPort
}

// NewCatalog constructs a Catalog. audit may be nil.
func NewCatalog(repo Repository, audit AuditPort) *Catalog {
	return &Catalog{repo: repo, audit: audit}
}

func normalize(in ServiceInput) ServiceInput {
	in.Name = strings.TrimSpace(in.Name)
	in.ProviderName = strings.TrimSpace(in.ProviderName)
	in.ProviderEmail = strings.ToLower(strings.TrimSpace(in.ProviderEmail))
	in.UnitPrice = in.UnitPrice.Round(2)
	in.UnitCost = in.UnitCost.Round(2)
	return in
}

// Create adds a catalog entry.
func (c *Catalog) Create(ctx context.Context, orgID, actorID int64, in ServiceInput) (*Service, error) {
	in = normalize(in)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	s := apply(Service{OrganizationID: orgID}, in)
	id, err := c.repo.Create(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.ID = id
	c.record(ctx, orgID, actorID, "service.created", id)
	return &s, nil
}

// Update edits a catalog entry. Existing booking lines keep their copied prices.
func (c *Catalog) Update(ctx context.Context, orgID, actorID, id int64, in ServiceInput) (*Service, error) {
	in = normalize(in)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	current, err := c.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	updated := apply(*current, in)
	if err := c.repo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	c.record(ctx, orgID, actorID, "service.updated", id)
	return &updated, nil
}

// Delete removes a catalog entry never used on a booking.
func (c *Catalog) Delete(ctx context.Context, orgID, actorID, id int64) error {
	if err := c.repo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	c.record(ctx, orgID, actorID, "service.deleted", id)
	return nil
}

// Get returns one entry.
func (c *Catalog) Get(ctx context.Context, orgID, id int64) (*Service, error) {
	return c.repo.Get(ctx, orgID, id)
}

// GetMany loads entries by id. Missing ids are absent from the map.
func (c *Catalog) GetMany(ctx context.Context, orgID int64, ids []int64) (map[int64]Service, error) {
	if len(ids) == 0 {
		return map[int64]Service{}, nil
	}
	return c.repo.GetMany(ctx, orgID, ids)
}

// List returns a filtered page of the catalog.
func (c *Catalog) List(ctx context.Context, req ListServicesRequest) ([]Service, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return c.repo.List(ctx, req)
}

// Options lists active entries for booking forms.
func (c *Catalog) Options(ctx context.Context, orgID int64) ([]Service, error) {
	out, _, err := c.repo.List(ctx, ListServicesRequest{OrganizationID: orgID, ActiveOnly: true, Limit: 1000})
	return out, err
}

func apply(s Service, in ServiceInput) Service {
	s.Name = in.Name
	s.Category = in.Category
	s.ProviderName = in.ProviderName
	s.ProviderEmail = in.ProviderEmail
	s.UnitPrice = in.UnitPrice
	s.UnitCost = in.UnitCost
	s.IsActive = in.IsActive
	return s
}

func (c *Catalog) record(ctx context.Context, orgID, actorID int64, action string, id int64) {
	if c.audit == nil {
		return
	}
	_ = c.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "service",
		EntityID:       fmt.Sprint(id),
	})
}
