package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/motorcrm/motorcrm/internal/platform/cache"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

var permissionDescriptions = map[string]string{
	shared.PermZonesView:       "View sales zones",
	shared.PermZonesEdit:       "Manage sales zones",
	shared.PermCustomersView:   "View customers",
	shared.PermCustomersEdit:   "Manage customers",
	shared.PermCarsView:        "View car inventory",
	shared.PermCarsEdit:        "Manage car inventory",
	shared.PermDealsView:       "View deals",
	shared.PermDealsEdit:       "Manage deals",
	shared.PermServicesView:    "View trip services",
	shared.PermServicesEdit:    "Manage trip services",
	shared.PermBookingsView:    "View bookings",
	shared.PermBookingsEdit:    "Manage bookings",
	shared.PermBookingsRespond: "Record provider responses",
	shared.PermRevenueView:     "View revenue",
	shared.PermDocumentsRender: "Render PDF documents",
	shared.PermUsersView:       "View users",
	shared.PermUsersEdit:       "Manage users",
	shared.PermAuditView:       "View audit log",
}

// Service orchestrates RBAC operations. Effective permissions are cached per user.
type Service struct {
	store  Store
	cache  *cache.JSONCache
	logger *slog.Logger
}

// NewService constructs a Service. permCache may be nil.
func NewService(store Store, permCache *cache.JSONCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: permCache, logger: logger}
}

// ListRoles returns the organization's roles.
func (s *Service) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	return s.store.ListRoles(ctx, orgID)
}

// UserRoles returns role names of a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return s.store.UserRoles(ctx, userID)
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	key := strconv.FormatInt(userID, 10)
	var perms []string
	hit, err := s.cache.Get(ctx, key, &perms)
	if err != nil {
		s.logger.Warn("rbac cache get", slog.Any("error", err))
	}
	if hit {
		return perms, nil
	}
	perms, err = s.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []string{}
	}
	if err := s.cache.Set(ctx, key, perms); err != nil {
		s.logger.Warn("rbac cache set", slog.Any("error", err))
	}
	return perms, nil
}

// Invalidate drops the cached permissions of a user.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	return s.cache.Delete(ctx, strconv.FormatInt(userID, 10))
}

// AssignRole replaces the user's role with roleName and drops the permission cache.
func (s *Service) AssignRole(ctx context.Context, orgID, userID int64, roleName string) error {
	role, err := s.store.RoleByName(ctx, orgID, strings.TrimSpace(roleName))
	if err != nil {
		return err
	}
	if err := s.store.ReplaceUserRole(ctx, userID, role.ID); err != nil {
		return err
	}
	return s.Invalidate(ctx, userID)
}

// SeedBuiltins creates every permission and the built-in roles of an organization.
// It is safe to run repeatedly.
func (s *Service) SeedBuiltins(ctx context.Context, orgID int64) ([]Role, error) {
	for _, name := range shared.AllPermissions() {
		if _, err := s.store.EnsurePermission(ctx, name, permissionDescriptions[name]); err != nil {
			return nil, err
		}
	}
	builtins := shared.BuiltinRoles()
	roles := make([]Role, 0, len(builtins))
	for _, name := range []string{"admin", "manager", "agent"} {
		role, err := s.store.EnsureRole(ctx, orgID, name, strings.ToUpper(name[:1])+name[1:], builtins[name])
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// Grants reports whether the user holds perm.
func (s *Service) Grants(ctx context.Context, userID int64, perm string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasAnyPermission(perms, normalizePermissions([]string{perm})), nil
}
