package posts

import (
	"context"
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

// RepositoryPort defines data access methods for posts.
type RepositoryPort interface {
	ListPosts(ctx context.Context, params coherence.ListParams) ([]Post, int64, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	InsertPost(ctx context.Context, q db.Querier, p *Post) (int64, error)
	UpdatePost(ctx context.Context, q db.Querier, p *Post) error
	DeletePost(ctx context.Context, q db.Querier, id int64) error
}

// ListResult is one cached page of a listing.
type ListResult struct {
	Posts    []Post `json:"posts"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// CreateInput carries the fields of a new post.
type CreateInput struct {
	Title  string
	Body   string
	Status Status
}

// UpdateInput carries the editable fields of a post.
type UpdateInput struct {
	Title  string
	Body   string
	Status Status
}

// Service implements the publishing workflow. Reads go through the
// look-aside cache; every write goes through the mutation pipeline.
type Service struct {
	repo     RepositoryPort
	pipeline *mutation.Pipeline
	store    *cache.Store
	logger   *slog.Logger
	listTTL  time.Duration
	postTTL  time.Duration
	now      func() time.Time
}

// NewService builds the posts service.
func NewService(repo RepositoryPort, pipeline *mutation.Pipeline, store *cache.Store, logger *slog.Logger, listTTL, postTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		pipeline: pipeline,
		store:    store,
		logger:   logger,
		listTTL:  listTTL,
		postTTL:  postTTL,
		now:      time.Now,
	}
}

// draftScope marks a listing that includes unpublished posts. It has
// no owner, so only bypass roles pass the decision.
type draftScope struct{}

func (draftScope) ResourceType() authz.ResourceType { return authz.ResourcePosts }
func (draftScope) OwnerID() int64                   { return 0 }
func (draftScope) PubliclyVisible() bool            { return false }

// List returns one page of posts. The default listing shows published
// posts and is public; any listing that could include drafts is
// restricted to bypass roles.
func (s *Service) List(ctx context.Context, principal *authz.Principal, params coherence.ListParams) (ListResult, error) {
	params = coherence.NormalizeListParams(params)
	if params.Status == "" {
		params.Status = string(StatusPublished)
	}

	var scope authz.Resource
	if params.Status != string(StatusPublished) {
		scope = draftScope{}
	}
	if err := s.pipeline.Registry().Decide(principal, authz.ActionView, authz.ResourcePosts, scope).Err(); err != nil {
		return ListResult{}, err
	}

	var result ListResult
	err := s.store.GetOrCompute(ctx, coherence.PostListKey(params), s.listTTL, &result, func(ctx context.Context) (any, error) {
		list, total, err := s.repo.ListPosts(ctx, params)
		if err != nil {
			return nil, err
		}
		return ListResult{Posts: list, Total: total, Page: params.Page, PageSize: params.PageSize}, nil
	})
	return result, err
}

// Get returns the single-post view. The cached payload is shared; the
// decision runs per request against the returned snapshot, so a draft
// in cache is still invisible to outsiders.
func (s *Service) Get(ctx context.Context, principal *authz.Principal, id int64) (*Post, error) {
	var post Post
	err := s.store.GetOrCompute(ctx, coherence.PostKey(id), s.postTTL, &post, func(ctx context.Context) (any, error) {
		p, err := s.repo.GetPost(ctx, id)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.pipeline.Registry().Decide(principal, authz.ActionView, authz.ResourcePosts, &post).Err(); err != nil {
		return nil, err
	}
	return &post, nil
}

// Create makes a new post owned by the caller.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, in CreateInput) (*Post, error) {
	if err := validateInput(in.Title, in.Status); err != nil {
		return nil, err
	}

	post := &Post{
		Title:  strings.TrimSpace(in.Title),
		Body:   in.Body,
		Status: in.Status,
	}
	post.Slug = Slugify(post.Title)
	post.PublishedAt = TransitionPublishedAt(StatusDraft, in.Status, nil, s.now())

	err := s.pipeline.Execute(ctx, principal, authz.ActionCreate, authz.ResourcePosts, nil,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			post.AuthorID = principal.ID
			id, err := s.repo.InsertPost(ctx, tx, post)
			if err != nil {
				return change.Event{}, err
			}
			post.ID = id
			return change.Event{Entity: change.EntityPost, Op: change.OpCreate, ID: id}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.repo.GetPost(ctx, post.ID)
}

// Update edits a post. The decision runs against the fresh stored row,
// not a cached copy.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, id int64, in UpdateInput) (*Post, error) {
	if err := validateInput(in.Title, in.Status); err != nil {
		return nil, err
	}
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourcePosts, post,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			next := *post
			next.Title = strings.TrimSpace(in.Title)
			next.Slug = Slugify(next.Title)
			next.Body = in.Body
			next.PublishedAt = TransitionPublishedAt(post.Status, in.Status, post.PublishedAt, s.now())
			next.Status = in.Status
			if err := s.repo.UpdatePost(ctx, tx, &next); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityPost, Op: change.OpUpdate, ID: id}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.repo.GetPost(ctx, id)
}

// SetStatus publishes or unpublishes a post, leaving content untouched.
func (s *Service) SetStatus(ctx context.Context, principal *authz.Principal, id int64, status Status) (*Post, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("posts: unknown status %q: %w", status, httpx.ErrValidation)
	}
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.pipeline.Execute(ctx, principal, authz.ActionUpdate, authz.ResourcePosts, post,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			next := *post
			next.PublishedAt = TransitionPublishedAt(post.Status, status, post.PublishedAt, s.now())
			next.Status = status
			if err := s.repo.UpdatePost(ctx, tx, &next); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityPost, Op: change.OpUpdate, ID: id}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.repo.GetPost(ctx, id)
}

// Delete removes a post and its comments.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, id int64) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	return s.pipeline.Execute(ctx, principal, authz.ActionDelete, authz.ResourcePosts, post,
		func(ctx context.Context, tx pgx.Tx) (change.Event, error) {
			if err := s.repo.DeletePost(ctx, tx, id); err != nil {
				return change.Event{}, err
			}
			return change.Event{Entity: change.EntityPost, Op: change.OpDelete, ID: id}, nil
		})
}

func validateInput(title string, status Status) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("posts: title required: %w", httpx.ErrValidation)
	}
	if !status.Valid() {
		return fmt.Errorf("posts: unknown status %q: %w", status, httpx.ErrValidation)
	}
	return nil
}
