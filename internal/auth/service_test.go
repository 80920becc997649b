package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/users"
)

type fakeUsers struct {
	byEmail map[string]*users.User
	byID    map[int64]*users.User
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUser(ctx context.Context, id int64) (*users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

type fakeRoles struct {
	roles map[int64][]string
	calls int
}

func (f *fakeRoles) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	f.calls++
	return f.roles[userID], nil
}

func newAuthFixture(t *testing.T) (*Service, *fakeRoles, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	alice := &users.User{ID: 1, Email: "alice@example.com", Name: "Alice", PasswordHash: string(hash), IsActive: true}
	bob := &users.User{ID: 2, Email: "bob@example.com", Name: "Bob", PasswordHash: string(hash), IsActive: false}

	userSource := &fakeUsers{
		byEmail: map[string]*users.User{alice.Email: alice, bob.Email: bob},
		byID:    map[int64]*users.User{alice.ID: alice, bob.ID: bob},
	}
	roleSource := &fakeRoles{roles: map[int64][]string{1: {"viewer"}}}

	tokens := NewTokenStore(client, time.Hour)
	return NewService(userSource, roleSource, tokens, nil), roleSource, mr
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	session, err := svc.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	assert.Equal(t, int64(1), session.UserID)

	principal, err := svc.PrincipalForToken(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), principal.ID)
	assert.Equal(t, []string{"viewer"}, principal.Roles)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Deactivated accounts look exactly like bad passwords.
	_, err = svc.Login(context.Background(), "bob@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	session, err := svc.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), session.Token))

	_, err = svc.PrincipalForToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrTokenUnknown)
}

func TestTokenExpires(t *testing.T) {
	svc, _, mr := newAuthFixture(t)

	session, err := svc.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = svc.PrincipalForToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrTokenUnknown)
}

func TestRolesResolvedPerRequest(t *testing.T) {
	svc, roleSource, _ := newAuthFixture(t)

	session, err := svc.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.PrincipalForToken(context.Background(), session.Token)
	require.NoError(t, err)
	before := roleSource.calls

	// A grant between requests is visible on the next resolution.
	roleSource.roles[1] = []string{"viewer", "editor"}
	principal, err := svc.PrincipalForToken(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, before+1, roleSource.calls)
	assert.Equal(t, []string{"viewer", "editor"}, principal.Roles)
}

func TestMiddleware(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	session, err := svc.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)

	var seen *authz.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(svc, nil)(next)

	t.Run("anonymous without header", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token resolves principal", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, int64(1), seen.ID)
	})
}
