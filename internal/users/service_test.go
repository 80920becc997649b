package users

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/mutation"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

type memoryRunner struct{}

func (memoryRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

type memoryRepo struct {
	users map[int64]*User
}

func (m *memoryRepo) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memoryRepo) GetUser(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memoryRepo) UpdateName(ctx context.Context, q db.Querier, id int64, name string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	return nil
}

func (m *memoryRepo) DeleteUser(ctx context.Context, q db.Querier, id int64) error {
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

var _ RepositoryPort = (*memoryRepo)(nil)

func newService(t *testing.T) (*Service, *memoryRepo, *change.Bus) {
	t.Helper()
	registry := authz.NewRegistry([]string{"admin", "editor"})
	registry.Replace([]authz.Role{
		{ID: 1, Name: "admin", Permissions: authz.AllPermissions()},
		{ID: 2, Name: "viewer", Permissions: []string{authz.PermViewPosts}},
		{ID: 3, Name: "support", Permissions: []string{authz.PermViewUsers}},
	})
	bus := change.NewBus(nil)
	repo := &memoryRepo{users: map[int64]*User{
		1: {ID: 1, Email: "admin@example.com", Name: "Admin", IsActive: true},
		2: {ID: 2, Email: "reader@example.com", Name: "Reader", IsActive: true},
		3: {ID: 3, Email: "helpdesk@example.com", Name: "Helpdesk", IsActive: true},
	}}
	pipeline := mutation.NewPipeline(memoryRunner{}, registry, bus, nil)
	return NewService(repo, pipeline, nil), repo, bus
}

func TestSelfDeletionDeniedEvenForAdmin(t *testing.T) {
	svc, repo, _ := newService(t)

	admin := &authz.Principal{ID: 1, Roles: []string{"admin"}}
	err := svc.Delete(context.Background(), admin, 1)

	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonSelfDeletion, denied.Reason)
	assert.Contains(t, repo.users, int64(1))
}

func TestAdminDeletesOtherUser(t *testing.T) {
	svc, repo, bus := newService(t)

	var events []change.Event
	bus.Subscribe(func(ctx context.Context, ev change.Event) error {
		events = append(events, ev)
		return nil
	})

	admin := &authz.Principal{ID: 1, Roles: []string{"admin"}}
	require.NoError(t, svc.Delete(context.Background(), admin, 2))

	assert.NotContains(t, repo.users, int64(2))
	require.Len(t, events, 1)
	assert.Equal(t, change.EntityUser, events[0].Entity)
	assert.Equal(t, change.OpDelete, events[0].Op)
}

func TestViewerCannotListUsers(t *testing.T) {
	svc, _, _ := newService(t)

	viewer := &authz.Principal{ID: 2, Roles: []string{"viewer"}}
	_, err := svc.List(context.Background(), viewer)

	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonMissingPermission, denied.Reason)
}

func TestSupportCannotReadForeignProfile(t *testing.T) {
	svc, _, _ := newService(t)

	// view_users alone is not enough for an instance owned by someone else.
	support := &authz.Principal{ID: 3, Roles: []string{"support"}}
	_, err := svc.Get(context.Background(), support, 2)

	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonNotOwner, denied.Reason)

	own, err := svc.Get(context.Background(), support, 3)
	require.NoError(t, err)
	assert.Equal(t, "Helpdesk", own.Name)
}

func TestMeRequiresAuthentication(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Me(context.Background(), nil)
	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonAuthenticationRequired, denied.Reason)

	me, err := svc.Me(context.Background(), &authz.Principal{ID: 2, Roles: []string{"viewer"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), me.ID)
}

func TestUpdateNameOwnershipRule(t *testing.T) {
	svc, repo, _ := newService(t)

	// A user without update_users cannot rename even their own account.
	viewer := &authz.Principal{ID: 2, Roles: []string{"viewer"}}
	_, err := svc.UpdateName(context.Background(), viewer, 2, "Renamed")
	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonMissingPermission, denied.Reason)

	admin := &authz.Principal{ID: 1, Roles: []string{"admin"}}
	updated, err := svc.UpdateName(context.Background(), admin, 2, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Renamed", repo.users[2].Name)
}
