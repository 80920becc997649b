package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/users"
)

// ErrInvalidCredentials covers unknown email, wrong password and
// deactivated accounts alike; callers cannot tell which.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// UserSource provides the account lookups the service needs.
type UserSource interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	GetUser(ctx context.Context, id int64) (*users.User, error)
}

// RoleSource resolves the role names of a user. Consulted per request.
type RoleSource interface {
	RolesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
}

// Service implements login and logout.
type Service struct {
	users  UserSource
	roles  RoleSource
	tokens *TokenStore
	logger *slog.Logger
}

// NewService builds the auth service.
func NewService(userSource UserSource, roleSource RoleSource, tokens *TokenStore, logger *slog.Logger) *Service {
	return &Service{users: userSource, roles: roleSource, tokens: tokens, logger: logger}
}

// Login verifies the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		// Burn comparable time so the error does not leak existence.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, expiry, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	if s.logger != nil {
		s.logger.Info("login", slog.Int64("user_id", user.ID))
	}
	return Session{Token: token, ExpiresAt: expiry, UserID: user.ID}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// PrincipalForToken resolves a bearer token to a principal. The user
// row and the role assignments are read fresh; nothing about the
// principal is cached between requests.
func (s *Service) PrincipalForToken(ctx context.Context, token string) (*authz.Principal, error) {
	userID, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrTokenUnknown
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrTokenUnknown
	}
	roles, err := s.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &authz.Principal{ID: user.ID, Roles: roles}, nil
}
