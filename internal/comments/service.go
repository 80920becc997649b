package comments

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

// RepositoryPort defines data access methods for comments.
type RepositoryPort interface {
	ListForPost(ctx context.Context, postID int64) ([]Comment, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	ParentMeta(ctx context.Context, postID int64) (authorID int64, published bool, err error)
	InsertComment(ctx context.Context, q db.Querier, c *Comment) (int64, error)
	UpdateComment(ctx context.Context, q db.Querier, id int64, body string) error
	DeleteComment(ctx context.Context, q db.Querier, id int64) error
}

// Service implements comment CRUD. Comment lists are not cached: the
// parent post view carries the cached count, and that is what the
// coordinator keeps coherent.
type Service struct {
	repo     RepositoryPort
	pipeline *mutation.Pipeline
	logger   *slog.Logger
}

// NewService builds the comments service.
func NewService(repo RepositoryPort, pipeline *mutation.Pipeline, logger *slog.Logger) *Service {
	return &Service{repo: repo, pipeline: pipeline, logger: logger}
}

// parentScope adapts the parent post's meta for the view decision on a
// comment listing.
type parentScope struct {
	authorID  int64
	published bool
}

func (p parentScope) ResourceType() authz.ResourceType { return authz.ResourceComments }
func (p parentScope) OwnerID() int64                   { return p.authorID }
func (p parentScope) PubliclyVisible() bool            { return p.published }

// ListForPost returns the comments of a post, gated by the parent's
// visibility.
func (s *Service) ListForPost(ctx context.Context, principal *authz.Principal, postID int64) ([]Comment, error) {
	authorID, published, err := s.repo.ParentMeta(ctx, postID)
	if err != nil {
		return nil, err
	}
	scope := parentScope{authorID: authorID, published: published}
	if err := s.pipeline.Registry().Decide(principal, authz.ActionView, authz.ResourceComments, scope).Err(); err != nil {
		return nil, err
	}
	return s.repo.ListForPost(ctx, postID)
}

// Create adds a comment to a published post.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, postID int64, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("comments: body required: %w", httpx.ErrValidation)
	}
	_, published, err := s.repo.ParentMeta(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !published {
		return nil, ErrPostNotFound
	}

	comment := &Comment{PostID: postID, Body: body}
	err = s.pipeline.Execute(ctx, principal, authz.ActionCreate, authz.ResourceComments, nil,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			comment.AuthorID = principal.ID
			id, err := s.repo.InsertComment(ctx, tx, comment)
			if err != nil {
				return change.Event{}, err
			}
			comment.ID = id
			return change.Event{
				Entity:    change.EntityComment,
				Op:        change.OpCreate,
				ID:        id,
				Relations: []change.Ref{{Entity: change.EntityPost, ID: postID}},
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.repo.GetComment(ctx, comment.ID)
}

// Update replaces a comment's body.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, id int64, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("comments: body required: %w", httpx.ErrValidation)
	}
	comment, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourceComments, comment,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.UpdateComment(ctx, tx, id, body); err != nil {
				return change.Event{}, err
			}
			return change.Event{
				Entity:    change.EntityComment,
				Op:        change.OpUpdate,
				ID:        id,
				Relations: []change.Ref{{Entity: change.EntityPost, ID: comment.PostID}},
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.repo.GetComment(ctx, id)
}

// Delete removes a comment.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, id int64) error {
	comment, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	return s.pipeline.Execute(ctx, principal, authz.ActionDelete, authz.ResourceComments, comment,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.DeleteComment(ctx, tx, id); err != nil {
				return change.Event{}, err
			}
			return change.Event{
				Entity:    change.EntityComment,
				Op:        change.OpDelete,
				ID:        id,
				Relations: []change.Ref{{Entity: change.EntityPost, ID: comment.PostID}},
			}, nil
		})
}
