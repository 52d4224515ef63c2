package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/motorcrm/motorcrm/internal/auth"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Roles lists and assigns organization roles.
type Roles interface {
	ListRoles(ctx context.Context, orgID int64) ([]rbac.Role, error)
	AssignRole(ctx context.Context, orgID, userID int64, roleName string) error
}

// Service manages the accounts of an organization.
type Service struct {
	repo  Repository
	roles Roles
	audit AuditPort
}

// NewService builds a Service. audit may be nil.
func NewService(repo Repository, roles Roles, audit AuditPort) *Service {
	return &Service{repo: repo, roles: roles, audit: audit}
}

// List returns every account of the organization with its roles.
func (s *Service) List(ctx context.Context, orgID int64) ([]User, error) {
	return s.repo.List(ctx, orgID)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*User, error) {
	return s.repo.Get(ctx, orgID, id)
}

// RoleNames lists the role names an account can receive.
func (s *Service) RoleNames(ctx context.Context, orgID int64) ([]string, error) {
	roles, err := s.roles.ListRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *Service) checkRole(ctx context.Context, orgID int64, role string) error {
	names, err := s.RoleNames(ctx, orgID)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownRole, role)
}

// Create registers an active account with one role.
func (s *Service) Create(ctx context.Context, orgID, actorID int64, in CreateUserInput) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	in.Role = strings.TrimSpace(in.Role)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.checkRole(ctx, orgID, in.Role); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.repo.Create(ctx, User{OrganizationID: orgID, Email: in.Email, FullName: in.FullName, IsActive: true}, hash)
	if err != nil {
		return nil, err
	}
	if err := s.roles.AssignRole(ctx, orgID, id, in.Role); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}
	s.record(ctx, orgID, actorID, "user.create", id, map[string]any{"email": in.Email, "role": in.Role})
	return s.repo.Get(ctx, orgID, id)
}

// SetActive enables or disables an account. Admins cannot disable themselves.
func (s *Service) SetActive(ctx context.Context, orgID, actorID, id int64, active bool) error {
	if id == actorID && !active {
		return fmt.Errorf("%w: you cannot deactivate your own account", ErrSelfChange)
	}
	if err := s.repo.SetActive(ctx, orgID, id, active); err != nil {
		return err
	}
	action := "user.deactivate"
	if active {
		action = "user.activate"
	}
	s.record(ctx, orgID, actorID, action, id, nil)
	return nil
}

// ChangeRole replaces the role of another account.
func (s *Service) ChangeRole(ctx context.Context, orgID, actorID, id int64, role string) error {
	role = strings.TrimSpace(role)
	if id == actorID {
		return fmt.Errorf("%w: you cannot change your own role", ErrSelfChange)
	}
	if _, err := s.repo.Get(ctx, orgID, id); err != nil {
		return err
	}
	if err := s.checkRole(ctx, orgID, role); err != nil {
		return err
	}
	if err := s.roles.AssignRole(ctx, orgID, id, role); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "user.role", id, map[string]any{"role": role})
	return nil
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "user",
		EntityID:       fmt.Sprint(id),
		Meta:           meta,
	})
}
