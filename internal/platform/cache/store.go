package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Store is a look-aside cache with per-key TTL in front of expensive
// reads. Concurrent misses for the same key are collapsed into a
// single computation; the other callers block on its result.
type Store struct {
	client *redis.Client
	logger *slog.Logger
	group  singleflight.Group

	// Optional observation hooks, wired to metrics by the app.
	OnHit  func(key string)
	OnMiss func(key string)
}

// NewStore wraps a Redis client.
func NewStore(client *redis.Client, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// GetOrCompute returns the cached value for key, computing and storing
// it on a miss. dest receives the JSON-decoded value.
//
// Guarantees:
//   - at most one concurrent computation per key; concurrent callers
//     share the result,
//   - a failed computation is propagated and never cached,
//   - a computation that outlives its requester's context still
//     completes and populates the cache for the next caller,
//   - when Redis itself is unavailable the value is computed directly
//     and the error is logged, never surfaced.
func (s *Store) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest any, compute func(context.Context) (any, error)) error {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		if s.OnHit != nil {
			s.OnHit(key)
		}
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		if s.logger != nil {
			s.logger.Warn("cache read failed, computing directly", slog.String("key", key), slog.Any("error", err))
		}
		value, err := compute(ctx)
		if err != nil {
			return err
		}
		return reencode(value, dest)
	}

	if s.OnMiss != nil {
		s.OnMiss(key)
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// Detached from the requester so a slow computation still
		// finishes and warms the cache for the next caller.
		bgCtx := context.WithoutCancel(ctx)
		value, err := compute(bgCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := s.client.Set(bgCtx, key, raw, ttl).Err(); err != nil && s.logger != nil {
			s.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Delete evicts the given keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Exists reports whether a key currently holds a value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func reencode(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
