// Package auth authenticates requests: email+password login issuing an
// opaque bearer token, and the middleware that resolves a request's
// principal. Role names are re-read from storage on every request so a
// grant or revocation applies to the very next call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTokenUnknown indicates an expired or never-issued token.
var ErrTokenUnknown = errors.New("auth: unknown token")

const tokenPrefix = "auth:token:"

// TokenStore keeps issued bearer tokens in Redis. Tokens carry only
// the user ID; roles and permissions are never stored with them.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore builds a token store with the given lifetime.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue mints a fresh opaque token for the user.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (string, time.Time, error) {
	token := uuid.NewString()
	expiry := time.Now().Add(s.ttl)
	if err := s.client.Set(ctx, tokenPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: store token: %w", err)
	}
	return token, expiry, nil
}

// Resolve returns the user ID a token was issued to.
func (s *TokenStore) Resolve(ctx context.Context, token string) (int64, error) {
	raw, err := s.client.Get(ctx, tokenPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenUnknown
	}
	if err != nil {
		return 0, fmt.Errorf("auth: resolve token: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrTokenUnknown
	}
	return id, nil
}

// Revoke invalidates a token. Revoking an unknown token is a no-op.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenPrefix+token).Err()
}
