package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	rt     ResourceType
	owner  int64
	public bool
}

func (f fakeResource) ResourceType() ResourceType { return f.rt }
func (f fakeResource) OwnerID() int64             { return f.owner }
func (f fakeResource) PubliclyVisible() bool      { return f.public }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry([]string{"admin", "editor"})
	reg.Replace([]Role{
		{ID: 1, Name: "admin", Permissions: AllPermissions()},
		{ID: 2, Name: "editor", Permissions: []string{
			PermViewPosts, PermCreatePosts, PermUpdatePosts, PermDeletePosts,
			PermViewComments, PermUpdateComments, PermDeleteComments,
		}},
		{ID: 3, Name: "author", Permissions: []string{
			PermViewPosts, PermCreatePosts, PermUpdatePosts, PermDeletePosts,
			PermViewComments, PermCreateComments, PermUpdateComments, PermDeleteComments,
		}},
		{ID: 4, Name: "viewer", Permissions: []string{
			PermViewPosts, PermViewComments, PermCreateComments,
		}},
	})
	return reg
}

func TestDecidePublicView(t *testing.T) {
	reg := newTestRegistry(t)

	published := fakeResource{rt: ResourcePosts, owner: 7, public: true}
	draft := fakeResource{rt: ResourcePosts, owner: 7, public: false}

	// Published resources are readable without a principal.
	d := reg.Decide(nil, ActionView, ResourcePosts, published)
	assert.True(t, d.Allowed)

	// Collection-level view of posts is public.
	d = reg.Decide(nil, ActionView, ResourcePosts, nil)
	assert.True(t, d.Allowed)

	// A draft is not, and the anonymous caller hits rule 2.
	d = reg.Decide(nil, ActionView, ResourcePosts, draft)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonAuthenticationRequired, d.Reason)

	// Collection view of users is never public.
	d = reg.Decide(nil, ActionView, ResourceUsers, nil)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonAuthenticationRequired, d.Reason)
}

func TestDecideAnonymousMutationsDenied(t *testing.T) {
	reg := newTestRegistry(t)
	d := reg.Decide(nil, ActionCreate, ResourcePosts, nil)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonAuthenticationRequired, d.Reason)
}

func TestDecideBypassIgnoresOwnership(t *testing.T) {
	reg := newTestRegistry(t)
	otherDraft := fakeResource{rt: ResourcePosts, owner: 99}

	admin := &Principal{ID: 1, Roles: []string{"admin"}}
	editor := &Principal{ID: 2, Roles: []string{"editor"}}

	for _, p := range []*Principal{admin, editor} {
		for _, action := range []Action{ActionUpdate, ActionDelete} {
			d := reg.Decide(p, action, ResourcePosts, otherDraft)
			assert.True(t, d.Allowed, "principal %d action %s", p.ID, action)
			assert.NotEqual(t, ReasonNotOwner, d.Reason)
		}
	}
}

func TestDecideBypassAppliesWithMixedRoles(t *testing.T) {
	reg := newTestRegistry(t)

	// Role union, not intersection: holding viewer alongside editor
	// must not weaken the bypass.
	mixed := &Principal{ID: 5, Roles: []string{"viewer", "editor"}}
	other := fakeResource{rt: ResourcePosts, owner: 42}

	d := reg.Decide(mixed, ActionDelete, ResourcePosts, other)
	require.True(t, d.Allowed)
}

func TestDecideBypassRoleWithoutPermissionFallsThrough(t *testing.T) {
	reg := newTestRegistry(t)

	// editor's own set lacks create_comments, so rule 3 does not match
	// and rule 4 requires the permission from some role.
	editor := &Principal{ID: 2, Roles: []string{"editor"}}
	d := reg.Decide(editor, ActionCreate, ResourceComments, nil)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingPermission, d.Reason)

	// Adding viewer supplies create_comments via the union.
	both := &Principal{ID: 2, Roles: []string{"editor", "viewer"}}
	d = reg.Decide(both, ActionCreate, ResourceComments, nil)
	assert.True(t, d.Allowed)
}

func TestDecideOwnershipRequiredForNonBypass(t *testing.T) {
	reg := newTestRegistry(t)

	author := &Principal{ID: 10, Roles: []string{"author"}}
	own := fakeResource{rt: ResourcePosts, owner: 10}
	foreign := fakeResource{rt: ResourcePosts, owner: 11}

	d := reg.Decide(author, ActionUpdate, ResourcePosts, own)
	assert.True(t, d.Allowed)

	// The role nominally has update_posts, but ownership still gates it.
	d = reg.Decide(author, ActionUpdate, ResourcePosts, foreign)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	d = reg.Decide(author, ActionDelete, ResourcePosts, foreign)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)
}

func TestDecideMissingPermission(t *testing.T) {
	reg := newTestRegistry(t)

	viewer := &Principal{ID: 20, Roles: []string{"viewer"}}
	own := fakeResource{rt: ResourcePosts, owner: 20}

	d := reg.Decide(viewer, ActionUpdate, ResourcePosts, own)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingPermission, d.Reason)
}

func TestDecideFailClosedOutsideEnumeratedPermissions(t *testing.T) {
	reg := newTestRegistry(t)

	// create_users is a valid vocabulary combination but no role is
	// ever granted it; the decision must deny, not allow.
	admin := &Principal{ID: 1, Roles: []string{"admin"}}
	d := reg.Decide(admin, ActionCreate, ResourceUsers, nil)
	require.False(t, d.Allowed)
}

func TestDecideUnknownRoleDenies(t *testing.T) {
	reg := newTestRegistry(t)
	ghost := &Principal{ID: 30, Roles: []string{"ghost"}}
	d := reg.Decide(ghost, ActionCreate, ResourcePosts, nil)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingPermission, d.Reason)
}

func TestDecideSelfDeletionDenied(t *testing.T) {
	reg := newTestRegistry(t)

	admin := &Principal{ID: 1, Roles: []string{"admin"}}
	self := fakeResource{rt: ResourceUsers, owner: 1}
	other := fakeResource{rt: ResourceUsers, owner: 2}

	// The pre-check wins over the admin bypass.
	d := reg.Decide(admin, ActionDelete, ResourceUsers, self)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonSelfDeletion, d.Reason)

	d = reg.Decide(admin, ActionDelete, ResourceUsers, other)
	assert.True(t, d.Allowed)
}

func TestDecidePanicsOnUnknownVocabulary(t *testing.T) {
	reg := newTestRegistry(t)
	p := &Principal{ID: 1, Roles: []string{"admin"}}

	assert.Panics(t, func() { reg.Decide(p, Action("approve"), ResourcePosts, nil) })
	assert.Panics(t, func() { reg.Decide(p, ActionView, ResourceType("invoices"), nil) })
}

func TestDeniedErrorMapping(t *testing.T) {
	err := Deny(ReasonAuthenticationRequired).Err().(*DeniedError)
	assert.Equal(t, 401, err.StatusCode())

	err = Deny(ReasonNotOwner).Err().(*DeniedError)
	assert.Equal(t, 403, err.StatusCode())
	assert.Equal(t, "you do not own this resource", err.PublicMessage())

	err = Deny(ReasonMissingPermission).Err().(*DeniedError)
	assert.Equal(t, "you lack permission for this action", err.PublicMessage())

	assert.NoError(t, Allow().Err())
}
