// Package users manages user accounts.
package users

import (
	"errors"
	"time"

	"github.com/inkwell-cms/inkwell/internal/authz"
)

// ErrNotFound indicates the user does not exist.
var ErrNotFound = errors.New("users: not found")

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResourceType implements authz.Resource: a user account owns itself,
// which is what makes the self-deletion pre-check bite.
func (u *User) ResourceType() authz.ResourceType { return authz.ResourceUsers }

// OwnerID implements authz.Resource.
func (u *User) OwnerID() int64 { return u.ID }

// PubliclyVisible implements authz.Resource; accounts never are.
func (u *User) PubliclyVisible() bool { return false }
