// Package comments manages the comments attached to posts. Every
// comment mutation names its parent post, so the coordinator can evict
// the embedded count on the post view.
package comments

import (
	"errors"
	"time"

	"github.com/inkwell-cms/inkwell/internal/authz"
)

// ErrNotFound indicates the comment does not exist.
var ErrNotFound = errors.New("comments: not found")

// ErrPostNotFound indicates the parent post does not exist or is not
// open for commenting.
var ErrPostNotFound = errors.New("comments: post not found")

// Comment is a stored comment. ParentPublished carries the parent
// post's visibility into the authorization decision.
type Comment struct {
	ID              int64     `json:"id"`
	PostID          int64     `json:"post_id"`
	AuthorID        int64     `json:"author_id"`
	AuthorName      string    `json:"author_name,omitempty"`
	Body            string    `json:"body"`
	ParentPublished bool      `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ResourceType implements authz.Resource.
func (c *Comment) ResourceType() authz.ResourceType { return authz.ResourceComments }

// OwnerID implements authz.Resource.
func (c *Comment) OwnerID() int64 { return c.AuthorID }

// PubliclyVisible implements authz.Resource; a comment is as visible
// as the post it hangs off.
func (c *Comment) PubliclyVisible() bool { return c.ParentPublished }
