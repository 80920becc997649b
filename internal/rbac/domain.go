// Package rbac administers roles, their permissions, and role
// assignments. Every mutation here is itself gated by the decision
// function; the bootstrap admin role is seeded, not created through
// this API.
package rbac

import (
	"errors"
	"time"

	"github.com/inkwell-cms/inkwell/internal/authz"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// ErrDuplicateRole indicates a role name collision.
var ErrDuplicateRole = errors.New("rbac: role name already taken")

// Role is the stored form of a role plus its permission names.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic capability, assignable only through roles.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// roleResource adapts a role row to the decision function. Roles have
// no owner and are never publicly visible.
type roleResource struct{}

func (roleResource) ResourceType() authz.ResourceType { return authz.ResourceRoles }
func (roleResource) OwnerID() int64                   { return 0 }
func (roleResource) PubliclyVisible() bool            { return false }
