// Package authz implements the authorization core: the permission
// registry and the decision function every read and mutation path is
// gated by.
package authz

import "fmt"

// Action is a verb applied to a resource type.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ResourceType names a kind of protected resource.
type ResourceType string

const (
	ResourcePosts    ResourceType = "posts"
	ResourceComments ResourceType = "comments"
	ResourceUsers    ResourceType = "users"
	ResourceRoles    ResourceType = "roles"
)

// Permission names follow the "{action}_{resource-type}" convention.
const (
	PermViewPosts      = "view_posts"
	PermCreatePosts    = "create_posts"
	PermUpdatePosts    = "update_posts"
	PermDeletePosts    = "delete_posts"
	PermViewComments   = "view_comments"
	PermCreateComments = "create_comments"
	PermUpdateComments = "update_comments"
	PermDeleteComments = "delete_comments"
	PermViewUsers      = "view_users"
	PermUpdateUsers    = "update_users"
	PermDeleteUsers    = "delete_users"
	PermViewRoles      = "view_roles"
	PermCreateRoles    = "create_roles"
	PermUpdateRoles    = "update_roles"
	PermDeleteRoles    = "delete_roles"
)

// AllPermissions enumerates every permission in the vocabulary, used at
// seed time.
func AllPermissions() []string {
	return []string{
		PermViewPosts, PermCreatePosts, PermUpdatePosts, PermDeletePosts,
		PermViewComments, PermCreateComments, PermUpdateComments, PermDeleteComments,
		PermViewUsers, PermUpdateUsers, PermDeleteUsers,
		PermViewRoles, PermCreateRoles, PermUpdateRoles, PermDeleteRoles,
	}
}

// PermissionName composes the permission identifier for an action on a
// resource type. It panics when either part is outside the registered
// vocabulary: that is a programmer error, not user input.
func PermissionName(action Action, rt ResourceType) string {
	if _, ok := actionVocabulary[action]; !ok {
		panic(fmt.Sprintf("authz: unknown action %q", action))
	}
	if _, ok := resourceVocabulary[rt]; !ok {
		panic(fmt.Sprintf("authz: unknown resource type %q", rt))
	}
	return string(action) + "_" + string(rt)
}

var actionVocabulary = map[Action]struct{}{
	ActionView:   {},
	ActionCreate: {},
	ActionUpdate: {},
	ActionDelete: {},
}

// resourceVocabulary also records which collection views are public:
// anonymous callers may list posts and comments, never users or roles.
var resourceVocabulary = map[ResourceType]struct {
	publicCollection bool
}{
	ResourcePosts:    {publicCollection: true},
	ResourceComments: {publicCollection: true},
	ResourceUsers:    {},
	ResourceRoles:    {},
}

// Role is a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Label       string
	Permissions []string
}

// Principal is the authenticated actor. A nil *Principal is an
// anonymous caller.
type Principal struct {
	ID    int64
	Roles []string
}

// Resource is the instance-level view the decision function needs: its
// type, its immutable owner, and whether it is in a publicly visible
// state (e.g. a published post).
type Resource interface {
	ResourceType() ResourceType
	OwnerID() int64
	PubliclyVisible() bool
}
