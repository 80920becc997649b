package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/coherence"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
)

// RepositoryPort defines the aggregate queries.
type RepositoryPort interface {
	PostStats(ctx context.Context) (PostStats, error)
	PostStatsRange(ctx context.Context, from, to time.Time) (PostStats, error)
	CommentStats(ctx context.Context) (CommentStats, error)
	CommentStatsRange(ctx context.Context, from, to time.Time) (CommentStats, error)
	UserStats(ctx context.Context) (UserStats, error)
}

// Service fronts the aggregates with the read-side cache.
type Service struct {
	repo     RepositoryPort
	registry *authz.Registry
	store    *cache.Store
	logger   *slog.Logger
	ttl      time.Duration
	rangeTTL time.Duration
}

// NewService builds the stats service.
func NewService(repo RepositoryPort, registry *authz.Registry, store *cache.Store, logger *slog.Logger, ttl, rangeTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		store:    store,
		logger:   logger,
		ttl:      ttl,
		rangeTTL: rangeTTL,
	}
}

// Posts returns the post counters.
func (s *Service) Posts(ctx context.Context, principal *authz.Principal) (PostStats, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourcePosts, nil).Err(); err != nil {
		return PostStats{}, err
	}
	var out PostStats
	err := s.store.GetOrCompute(ctx, coherence.StatsKey(coherence.StatsPosts), s.ttl, &out, func(ctx context.Context) (any, error) {
		return s.repo.PostStats(ctx)
	})
	return out, err
}

// PostsRange returns post counters bounded to [from, to). Range keys
// are a TTL family; the coordinator never evicts them.
func (s *Service) PostsRange(ctx context.Context, principal *authz.Principal, from, to time.Time) (PostStats, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourcePosts, nil).Err(); err != nil {
		return PostStats{}, err
	}
	var out PostStats
	key := coherence.StatsRangeKey(coherence.StatsPosts, from, to)
	err := s.store.GetOrCompute(ctx, key, s.rangeTTL, &out, func(ctx context.Context) (any, error) {
		return s.repo.PostStatsRange(ctx, from, to)
	})
	return out, err
}

// Comments returns the comment counters.
func (s *Service) Comments(ctx context.Context, principal *authz.Principal) (CommentStats, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourceComments, nil).Err(); err != nil {
		return CommentStats{}, err
	}
	var out CommentStats
	err := s.store.GetOrCompute(ctx, coherence.StatsKey(coherence.StatsComments), s.ttl, &out, func(ctx context.Context) (any, error) {
		return s.repo.CommentStats(ctx)
	})
	return out, err
}

// CommentsRange returns comment counters bounded to [from, to).
func (s *Service) CommentsRange(ctx context.Context, principal *authz.Principal, from, to time.Time) (CommentStats, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourceComments, nil).Err(); err != nil {
		return CommentStats{}, err
	}
	var out CommentStats
	key := coherence.StatsRangeKey(coherence.StatsComments, from, to)
	err := s.store.GetOrCompute(ctx, key, s.rangeTTL, &out, func(ctx context.Context) (any, error) {
		return s.repo.CommentStatsRange(ctx, from, to)
	})
	return out, err
}

// Users returns the account counters and author leaderboard. Account
// data is not public, so this one needs the users view permission.
func (s *Service) Users(ctx context.Context, principal *authz.Principal) (UserStats, error) {
	if err := s.registry.Decide(principal, authz.ActionView, authz.ResourceUsers, nil).Err(); err != nil {
		return UserStats{}, err
	}
	var out UserStats
	err := s.store.GetOrCompute(ctx, coherence.StatsKey(coherence.StatsUsers), s.ttl, &out, func(ctx context.Context) (any, error) {
		return s.repo.UserStats(ctx)
	})
	return out, err
}

// Warm precomputes the un-parameterized aggregates. Used by the
// background warmup job after deploys and floods of evictions.
func (s *Service) Warm(ctx context.Context) error {
	var posts PostStats
	if err := s.store.GetOrCompute(ctx, coherence.StatsKey(coherence.StatsPosts), s.ttl, &posts, func(ctx context.Context) (any, error) {
		return s.repo.PostStats(ctx)
	}); err != nil {
		return err
	}
	var comments CommentStats
	if err := s.store.GetOrCompute(ctx, coherence.StatsKey(coherence.StatsComments), s.ttl, &comments, func(ctx context.Context) (any, error) {
		return s.repo.CommentStats(ctx)
	}); err != nil {
		return err
	}
	var users UserStats
	if err := s.store.GetOrCompute(ctx, coherence.StatsKey(coherence.StatsUsers), s.ttl, &users, func(ctx context.Context) (any, error) {
		return s.repo.UserStats(ctx)
	}); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("stats cache warmed")
	}
	return nil
}
