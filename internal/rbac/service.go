package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/coherence"
	"github.com/inkwell-cms/inkwell/internal/mutation"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
)

// RepositoryPort defines data access methods for rbac.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	InsertRole(ctx context.Context, q db.Querier, name, label string) (int64, error)
	UpdateRole(ctx context.Context, q db.Querier, id int64, name, label string) error
	DeleteRole(ctx context.Context, q db.Querier, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, q db.Querier, name, description string) (int64, error)
	AttachPermission(ctx context.Context, q db.Querier, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, q db.Querier, roleID, permissionID int64) error
	AssignRole(ctx context.Context, q db.Querier, userID, roleID int64) error
	RemoveRole(ctx context.Context, q db.Querier, userID, roleID int64) error
	RolesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Service orchestrates role administration. Mutations run through the
// pipeline like any other resource; the permission registry is rebuilt
// whenever a role event lands on the bus.
type Service struct {
	repo     RepositoryPort
	pipeline *mutation.Pipeline
	registry *authz.Registry
	store    *cache.Store
	logger   *slog.Logger
	rolesTTL time.Duration
}

// NewService builds the rbac service.
func NewService(repo RepositoryPort, pipeline *mutation.Pipeline, registry *authz.Registry, store *cache.Store, logger *slog.Logger, rolesTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		pipeline: pipeline,
		registry: registry,
		store:    store,
		logger:   logger,
		rolesTTL: rolesTTL,
	}
}

// RegisterRebuild subscribes the registry rebuild to role change
// events. Assignments do not alter the role -> permission map, so they
// do not trigger a rebuild.
func (s *Service) RegisterRebuild(bus *change.Bus) {
	bus.Subscribe(func(ctx context.Context, ev change.Event) error {
		if ev.Entity != change.EntityRole {
			return nil
		}
		return s.Rebuild(ctx)
	})
}

// Rebuild reloads the registry snapshot from storage.
func (s *Service) Rebuild(ctx context.Context) error {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("rbac: rebuild registry: %w", err)
	}
	snapshot := make([]authz.Role, 0, len(roles))
	for _, role := range roles {
		snapshot = append(snapshot, authz.Role{
			ID:          role.ID,
			Name:        role.Name,
			Label:       role.Label,
			Permissions: role.Permissions,
		})
	}
	s.registry.Replace(snapshot)
	if s.logger != nil {
		s.logger.Info("permission registry rebuilt", slog.Int("roles", len(snapshot)))
	}
	return nil
}

// ListRoles returns all roles, cached under the role-metadata key.
func (s *Service) ListRoles(ctx context.Context, principal *authz.Principal) ([]Role, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourceRoles, nil).Err(); err != nil {
		return nil, err
	}
	var roles []Role
	err := s.store.GetOrCompute(ctx, coherence.RolesMetaKey(), s.rolesTTL, &roles, func(ctx context.Context) (any, error) {
		return s.repo.ListRoles(ctx)
	})
	return roles, err
}

// GetRole fetches a single role.
func (s *Service) GetRole(ctx context.Context, principal *authz.Principal, id int64) (Role, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourceRoles, nil).Err(); err != nil {
		return Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}

// ListPermissions returns the permission vocabulary.
func (s *Service) ListPermissions(ctx context.Context, principal *authz.Principal) ([]Permission, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourceRoles, nil).Err(); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx)
}

// CreateRole inserts a role with an initial permission set.
func (s *Service) CreateRole(ctx context.Context, principal *authz.Principal, name, label string, permissions []string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", httpx.ErrValidation)
	}
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}

	var id int64
	err := s.pipeline.Execute(ctx, principal, authz.ActionCreate, authz.ResourceRoles, nil,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			var err error
			id, err = s.repo.InsertRole(ctx, tx, name, strings.TrimSpace(label))
			if err != nil {
				return change.Event{}, err
			}
			if err := s.setPermissions(ctx, tx, id, nil, permissions); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityRole, Op: change.OpCreate, ID: id}, nil
		})
	if err != nil {
		return Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}

// UpdateRole changes name and label.
func (s *Service) UpdateRole(ctx context.Context, principal *authz.Principal, id int64, name, label string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", httpx.ErrValidation)
	}
	if _, err := s.repo.GetRole(ctx, id); err != nil {
		return Role{}, err
	}
	err := s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourceRoles, roleResource{},
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.UpdateRole(ctx, tx, id, name, strings.TrimSpace(label)); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityRole, Op: change.OpUpdate, ID: id}, nil
		})
	if err != nil {
		return Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}

// DeleteRole removes a role; the deletion cascades to every principal
// holding it.
func (s *Service) DeleteRole(ctx context.Context, principal *authz.Principal, id int64) error {
	if _, err := s.repo.GetRole(ctx, id); err != nil {
		return err
	}
	return s.pipeline.Execute(ctx, principal, authz.ActionDelete, authz.ResourceRoles, roleResource{},
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.DeleteRole(ctx, tx, id); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityRole, Op: change.OpDelete, ID: id}, nil
		})
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, principal *authz.Principal, roleID int64, permissions []string) (Role, error) {
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}
	current, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	err = s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourceRoles, roleResource{},
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.setPermissions(ctx, tx, roleID, current.Permissions, permissions); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityRole, Op: change.OpUpdate, ID: roleID}, nil
		})
	if err != nil {
		return Role{}, err
	}
	return s.repo.GetRole(ctx, roleID)
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, principal *authz.Principal, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourceRoles, roleResource{},
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.AssignRole(ctx, tx, userID, roleID); err != nil {
				return change.Event{}, err
			}
			return change.Event{
				Entity:    change.EntityRoleAssignment,
				Op:        change.OpCreate,
				ID:        userID,
				Relations: []change.Ref{{Entity: change.EntityRole, ID: roleID}},
			}, nil
		})
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, principal *authz.Principal, userID, roleID int64) error {
	return s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourceRoles, roleResource{},
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.RemoveRole(ctx, tx, userID, roleID); err != nil {
				return change.Event{}, err
			}
			return change.Event{
				Entity:    change.EntityRoleAssignment,
				Op:        change.OpDelete,
				ID:        userID,
				Relations: []change.Ref{{Entity: change.EntityRole, ID: roleID}},
			}, nil
		})
}

// RolesForUser returns the role names assigned to a user.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.RolesForUser(ctx, userID)
}

func (s *Service) setPermissions(ctx context.Context, tx pgx.Tx, roleID int64, current, desired []string) error {
	keep := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		keep[name] = struct{}{}
		permID, err := s.repo.EnsurePermission(ctx, tx, name, "")
		if err != nil {
			return err
		}
		if err := s.repo.AttachPermission(ctx, tx, roleID, permID); err != nil {
			return err
		}
	}
	for _, name := range current {
		if _, ok := keep[name]; ok {
			continue
		}
		permID, err := s.repo.EnsurePermission(ctx, tx, name, "")
		if err != nil {
			return err
		}
		if err := s.repo.DetachPermission(ctx, tx, roleID, permID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func validatePermissions(permissions []string) error {
	known := make(map[string]struct{})
	for _, name := range authz.AllPermissions() {
		known[name] = struct{}{}
	}
	for _, name := range permissions {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("rbac: unknown permission %q: %w", name, httpx.ErrValidation)
		}
	}
	return nil
}
