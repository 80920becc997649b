// Package posts implements the publishing workflow: drafts, published
// articles, and the listing surface the read-side cache fronts.
package posts

import (
	"errors"
	"time"

	"github.com/inkwell-cms/inkwell/internal/authz"
)

// ErrNotFound indicates the post does not exist.
var ErrNotFound = errors.New("posts: not found")

// ErrDuplicateTitle indicates a title collision.
var ErrDuplicateTitle = errors.New("posts: title already taken")

// Status is the lifecycle state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether the status belongs to the vocabulary.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Post is a stored article. CommentCount and LastCommentAt are derived
// on read; they are why a comment mutation evicts the parent post key.
type Post struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Body          string     `json:"body"`
	Status        Status     `json:"status"`
	AuthorID      int64      `json:"author_id"`
	AuthorName    string     `json:"author_name,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CommentCount  int64      `json:"comment_count"`
	LastCommentAt *time.Time `json:"last_comment_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ResourceType implements authz.Resource.
func (p *Post) ResourceType() authz.ResourceType { return authz.ResourcePosts }

// OwnerID implements authz.Resource.
func (p *Post) OwnerID() int64 { return p.AuthorID }

// PubliclyVisible implements authz.Resource; published posts are
// readable by anyone, drafts are not.
func (p *Post) PubliclyVisible() bool { return p.Status == StatusPublished }

// TransitionPublishedAt computes the published_at value resulting from
// a status change. Pure: publishing stamps now, unpublishing clears,
// anything else preserves the current value.
func TransitionPublishedAt(oldStatus, newStatus Status, current *time.Time, now time.Time) *time.Time {
	switch {
	case oldStatus != StatusPublished && newStatus == StatusPublished:
		now = now.UTC()
		return &now
	case oldStatus == StatusPublished && newStatus != StatusPublished:
		return nil
	default:
		return current
	}
}
