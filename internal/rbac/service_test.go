package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/mutation"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

type memoryRunner struct{}

func (memoryRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

// memoryRepo is an in-memory RepositoryPort for service tests.
type memoryRepo struct {
	nextID      int64
	roles       map[int64]*Role
	perms       map[string]int64
	grants      map[int64]map[int64]struct{} // roleID -> permIDs
	assignments map[int64]map[int64]struct{} // userID -> roleIDs

	listCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:      1,
		roles:       map[int64]*Role{},
		perms:       map[string]int64{},
		grants:      map[int64]map[int64]struct{}{},
		assignments: map[int64]map[int64]struct{}{},
	}
}

func (m *memoryRepo) permNames(roleID int64) []string {
	var names []string
	for name, id := range m.perms {
		if _, ok := m.grants[roleID][id]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (m *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	m.listCalls++
	var out []Role
	for _, role := range m.roles {
		r := *role
		r.Permissions = m.permNames(role.ID)
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	r := *role
	r.Permissions = m.permNames(id)
	return r, nil
}

func (m *memoryRepo) InsertRole(ctx context.Context, q db.Querier, name, label string) (int64, error) {
	for _, role := range m.roles {
		if role.Name == name {
			return 0, ErrDuplicateRole
		}
	}
	id := m.nextID
	m.nextID++
	m.roles[id] = &Role{ID: id, Name: name, Label: label}
	return id, nil
}

func (m *memoryRepo) UpdateRole(ctx context.Context, q db.Querier, id int64, name, label string) error {
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.Name, role.Label = name, label
	return nil
}

func (m *memoryRepo) DeleteRole(ctx context.Context, q db.Querier, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	delete(m.grants, id)
	for _, roleIDs := range m.assignments {
		delete(roleIDs, id)
	}
	return nil
}

func (m *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for name, id := range m.perms {
		out = append(out, Permission{ID: id, Name: name})
	}
	return out, nil
}

func (m *memoryRepo) EnsurePermission(ctx context.Context, q db.Querier, name, description string) (int64, error) {
	if id, ok := m.perms[name]; ok {
		return id, nil
	}
	id := m.nextID
	m.nextID++
	m.perms[name] = id
	return id, nil
}

func (m *memoryRepo) AttachPermission(ctx context.Context, q db.Querier, roleID, permissionID int64) error {
	if m.grants[roleID] == nil {
		m.grants[roleID] = map[int64]struct{}{}
	}
	m.grants[roleID][permissionID] = struct{}{}
	return nil
}

func (m *memoryRepo) DetachPermission(ctx context.Context, q db.Querier, roleID, permissionID int64) error {
	delete(m.grants[roleID], permissionID)
	return nil
}

func (m *memoryRepo) AssignRole(ctx context.Context, q db.Querier, userID, roleID int64) error {
	if m.assignments[userID] == nil {
		m.assignments[userID] = map[int64]struct{}{}
	}
	m.assignments[userID][roleID] = struct{}{}
	return nil
}

func (m *memoryRepo) RemoveRole(ctx context.Context, q db.Querier, userID, roleID int64) error {
	if _, ok := m.assignments[userID][roleID]; !ok {
		return ErrNotFound
	}
	delete(m.assignments[userID], roleID)
	return nil
}

func (m *memoryRepo) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	for roleID := range m.assignments[userID] {
		if role, ok := m.roles[roleID]; ok {
			names = append(names, role.Name)
		}
	}
	return names, nil
}

type rbacFixture struct {
	repo     *memoryRepo
	service  *Service
	registry *authz.Registry
	bus      *change.Bus
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *rbacFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	registry := authz.NewRegistry([]string{"admin", "editor"})
	bus := change.NewBus(nil)
	pipeline := mutation.NewPipeline(memoryRunner{}, registry, bus, nil)
	store := cache.NewStore(client, nil)
	svc := NewService(repo, pipeline, registry, store, nil, time.Minute)
	svc.RegisterRebuild(bus)

	return &rbacFixture{repo: repo, service: svc, registry: registry, bus: bus, redis: mr}
}

func (f *rbacFixture) seedRole(t *testing.T, name string, perms ...string) int64 {
	t.Helper()
	id, err := f.repo.InsertRole(context.Background(), nil, name, "")
	require.NoError(t, err)
	for _, p := range perms {
		permID, err := f.repo.EnsurePermission(context.Background(), nil, p, "")
		require.NoError(t, err)
		require.NoError(t, f.repo.AttachPermission(context.Background(), nil, id, permID))
	}
	require.NoError(t, f.service.Rebuild(context.Background()))
	return id
}

func adminPrincipal() *authz.Principal {
	return &authz.Principal{ID: 1, Roles: []string{"admin"}}
}

func TestCreateRoleRebuildsRegistry(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)

	role, err := f.service.CreateRole(context.Background(), adminPrincipal(), "Moderator", "Comment moderator",
		[]string{authz.PermViewComments, authz.PermDeleteComments})
	require.NoError(t, err)
	assert.Equal(t, "moderator", role.Name, "names are normalized to lower case")

	// The role event must already have propagated into the registry.
	perms := f.registry.PermissionsFor("moderator")
	assert.Equal(t, []string{authz.PermDeleteComments, authz.PermViewComments}, perms)
}

func TestCreateRoleDeniedForNonAdmin(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "viewer", authz.PermViewPosts)

	viewer := &authz.Principal{ID: 7, Roles: []string{"viewer"}}
	_, err := f.service.CreateRole(context.Background(), viewer, "sneaky", "", nil)

	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonMissingPermission, denied.Reason)
	assert.Len(t, f.repo.roles, 1, "storage untouched on deny")
}

func TestAssignRoleTakesEffectOnNextRequest(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)
	viewerID := f.seedRole(t, "viewer", authz.PermViewPosts)
	editorID := f.seedRole(t, "editor", authz.PermViewPosts, authz.PermUpdatePosts)

	const userID = int64(42)
	require.NoError(t, f.repo.AssignRole(context.Background(), nil, userID, viewerID))

	// Before the grant: viewer only, updating someone else's post is denied.
	roles, err := f.service.RolesForUser(context.Background(), userID)
	require.NoError(t, err)
	principal := &authz.Principal{ID: userID, Roles: roles}
	foreignPost := testPost{owner: 99}
	assert.Equal(t, authz.ReasonMissingPermission,
		f.registry.Decide(principal, authz.ActionUpdate, authz.ResourcePosts, foreignPost).Reason)

	require.NoError(t, f.service.AssignRole(context.Background(), adminPrincipal(), userID, editorID))

	// The very next request re-reads assignments and sees the new role.
	roles, err = f.service.RolesForUser(context.Background(), userID)
	require.NoError(t, err)
	principal = &authz.Principal{ID: userID, Roles: roles}
	decision := f.registry.Decide(principal, authz.ActionUpdate, authz.ResourcePosts, foreignPost)
	assert.True(t, decision.Allowed, "editor bypass applies immediately, no token reissue")
}

func TestDeleteRoleRevokesAccess(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)
	modID := f.seedRole(t, "moderator", authz.PermDeleteComments)

	const userID = int64(5)
	require.NoError(t, f.repo.AssignRole(context.Background(), nil, userID, modID))

	require.NoError(t, f.service.DeleteRole(context.Background(), adminPrincipal(), modID))

	roles, err := f.service.RolesForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, roles, "deletion cascades to assignments")
	assert.Empty(t, f.registry.PermissionsFor("moderator"))
}

func TestSetRolePermissionsReplacesSet(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)
	id := f.seedRole(t, "author", authz.PermCreatePosts, authz.PermUpdatePosts)

	role, err := f.service.SetRolePermissions(context.Background(), adminPrincipal(), id,
		[]string{authz.PermCreatePosts, authz.PermCreateComments})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{authz.PermCreatePosts, authz.PermCreateComments}, role.Permissions)
	assert.Equal(t, []string{authz.PermCreateComments, authz.PermCreatePosts}, f.registry.PermissionsFor("author"))
}

func TestSetRolePermissionsRejectsUnknownName(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)
	id := f.seedRole(t, "author", authz.PermCreatePosts)

	_, err := f.service.SetRolePermissions(context.Background(), adminPrincipal(), id, []string{"fly_to_the_moon"})
	require.Error(t, err)
}

func TestListRolesCachedUnderMetaKey(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)

	before := f.repo.listCalls
	_, err := f.service.ListRoles(context.Background(), adminPrincipal())
	require.NoError(t, err)
	_, err = f.service.ListRoles(context.Background(), adminPrincipal())
	require.NoError(t, err)
	assert.Equal(t, before+1, f.repo.listCalls, "second list served from cache")
}

// testPost satisfies authz.Resource for decision assertions.
type testPost struct {
	owner  int64
	public bool
}

func (p testPost) ResourceType() authz.ResourceType { return authz.ResourcePosts }
func (p testPost) OwnerID() int64                   { return p.owner }
func (p testPost) PubliclyVisible() bool            { return p.public }

// Guard against the fixture silently drifting from the port.
var _ RepositoryPort = (*memoryRepo)(nil)

// Seed two roles with colliding names to pin the duplicate error.
func TestCreateRoleDuplicateName(t *testing.T) {
	f := newFixture(t)
	f.seedRole(t, "admin", authz.AllPermissions()...)

	_, err := f.service.CreateRole(context.Background(), adminPrincipal(), "admin", "", nil)
	require.ErrorIs(t, err, ErrDuplicateRole)
}
