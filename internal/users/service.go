package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/mutation"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateName(ctx context.Context, q db.Querier, id int64, name string) error
	DeleteUser(ctx context.Context, q db.Querier, id int64) error
}

// Service handles account administration. User rows are never cached:
// the principal resolved from them must always reflect storage.
type Service struct {
	repo     RepositoryPort
	pipeline *mutation.Pipeline
	logger   *slog.Logger
}

// NewService builds the users service.
func NewService(repo RepositoryPort, pipeline *mutation.Pipeline, logger *slog.Logger) *Service {
	return &Service{repo: repo, pipeline: pipeline, logger: logger}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context, principal *authz.Principal) ([]User, error) {
	if err := s.pipeline.Registry().Decide(principal, authz.ActionView, authz.ResourceUsers, nil).Err(); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// Get fetches a single account. Subject to the ownership rule: a
// non-privileged caller can only see their own row.
func (s *Service) Get(ctx context.Context, principal *authz.Principal, id int64) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.pipeline.Registry().Decide(principal, authz.ActionView, authz.ResourceUsers, user).Err(); err != nil {
		return nil, err
	}
	return user, nil
}

// Me returns the caller's own account; only authentication is required.
func (s *Service) Me(ctx context.Context, principal *authz.Principal) (*User, error) {
	if principal == nil {
		return nil, authz.Deny(authz.ReasonAuthenticationRequired).Err()
	}
	return s.repo.GetUser(ctx, principal.ID)
}

// UpdateName changes the display name of an account.
func (s *Service) UpdateName(ctx context.Context, principal *authz.Principal, id int64, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("users: name required: %w", httpx.ErrValidation)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourceUsers, user,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.UpdateName(ctx, tx, id, name); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityUser, Op: change.OpUpdate, ID: id}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, id)
}

// Delete removes an account and everything it owns. The decision layer
// refuses the caller's own account regardless of role.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, id int64) error {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.pipeline.Execute(ctx, principal, authz.ActionDelete, authz.ResourceUsers, user,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.DeleteUser(ctx, tx, id); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityUser, Op: change.OpDelete, ID: id}, nil
		})
}
