package comments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for comments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const commentColumns = `c.id, c.post_id, c.author_id, u.name, c.body,
	(p.status = 'published'), c.created_at, c.updated_at`

// ListForPost returns the comments of a post, oldest first.
func (r *Repository) ListForPost(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.author_id
		JOIN posts p ON p.id = c.post_id
		WHERE c.post_id = $1 ORDER BY c.created_at, c.id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Body,
			&c.ParentPublished, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// GetComment fetches a comment with its parent's visibility.
func (r *Repository) GetComment(ctx context.Context, id int64) (*Comment, error) {
	var c Comment
	err := r.pool.QueryRow(ctx, `SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.author_id
		JOIN posts p ON p.id = c.post_id
		WHERE c.id = $1`, id).
		Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Body,
			&c.ParentPublished, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ParentMeta returns the author and visibility of a post.
func (r *Repository) ParentMeta(ctx context.Context, postID int64) (authorID int64, published bool, err error) {
	err = r.pool.QueryRow(ctx, `SELECT author_id, status = 'published' FROM posts WHERE id = $1`, postID).
		Scan(&authorID, &published)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, ErrPostNotFound
	}
	return authorID, published, err
}

// InsertComment creates a comment and returns its ID.
func (r *Repository) InsertComment(ctx context.Context, q db.Querier, c *Comment) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO comments (post_id, author_id, body, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id`, c.PostID, c.AuthorID, c.Body).Scan(&id)
	return id, err
}

// UpdateComment replaces the body.
func (r *Repository) UpdateComment(ctx context.Context, q db.Querier, id int64, body string) error {
	tag, err := q.Exec(ctx, `UPDATE comments SET body = $2, updated_at = NOW() WHERE id = $1`, id, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(ctx context.Context, q db.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
