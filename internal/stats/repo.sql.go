// Package stats serves the aggregate counters the dashboard reads.
// Aggregates are expensive to compute and cheap to cache; the
// un-parameterized ones are evicted by the coordinator, the date-ranged
// ones expire by TTL.
package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostStats counts posts by lifecycle state.
type PostStats struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
	Drafts    int64 `json:"drafts"`
}

// CommentStats counts comments.
type CommentStats struct {
	Total int64 `json:"total"`
}

// AuthorCount is one row of the author leaderboard.
type AuthorCount struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Posts  int64  `json:"posts"`
}

// UserStats counts accounts and ranks the most prolific authors.
type UserStats struct {
	Total      int64         `json:"total"`
	TopAuthors []AuthorCount `json:"top_authors"`
}

// Repository computes aggregates straight from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PostStats counts all posts by status.
func (r *Repository) PostStats(ctx context.Context) (PostStats, error) {
	var s PostStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'published'),
		COUNT(*) FILTER (WHERE status = 'draft')
		FROM posts`).Scan(&s.Total, &s.Published, &s.Drafts)
	return s, err
}

// PostStatsRange counts posts published inside [from, to).
func (r *Repository) PostStatsRange(ctx context.Context, from, to time.Time) (PostStats, error) {
	var s PostStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*), 0
		FROM posts WHERE status = 'published' AND published_at >= $1 AND published_at < $2`,
		from, to).Scan(&s.Total, &s.Published, &s.Drafts)
	return s, err
}

// CommentStats counts all comments.
func (r *Repository) CommentStats(ctx context.Context) (CommentStats, error) {
	var s CommentStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments`).Scan(&s.Total)
	return s, err
}

// CommentStatsRange counts comments created inside [from, to).
func (r *Repository) CommentStatsRange(ctx context.Context, from, to time.Time) (CommentStats, error) {
	var s CommentStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments WHERE created_at >= $1 AND created_at < $2`,
		from, to).Scan(&s.Total)
	return s, err
}

// UserStats counts accounts and computes the author leaderboard.
func (r *Repository) UserStats(ctx context.Context) (UserStats, error) {
	var s UserStats
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&s.Total); err != nil {
		return s, err
	}
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.name, COUNT(p.id)
		FROM users u JOIN posts p ON p.author_id = u.id AND p.status = 'published'
		GROUP BY u.id, u.name ORDER BY COUNT(p.id) DESC, u.id LIMIT 10`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var a AuthorCount
		if err := rows.Scan(&a.UserID, &a.Name, &a.Posts); err != nil {
			return s, err
		}
		s.TopAuthors = append(s.TopAuthors, a)
	}
	return s, rows.Err()
}
