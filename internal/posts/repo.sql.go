package posts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/internal/coherence"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for posts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const postColumns = `p.id, p.title, p.slug, p.body, p.status, p.author_id, u.name,
	p.published_at, p.created_at, p.updated_at`

var sortColumns = map[string]string{
	"published_at": "p.published_at",
	"created_at":   "p.created_at",
	"title":        "p.title",
}

// ListPosts returns one page of posts for a canonicalized parameter
// tuple, plus the total match count.
func (r *Repository) ListPosts(ctx context.Context, params coherence.ListParams) ([]Post, int64, error) {
	sortCol, ok := sortColumns[params.SortField]
	if !ok {
		sortCol = "p.published_at"
	}
	dir := "DESC"
	if params.SortOrder == "asc" {
		dir = "ASC"
	}

	where := "TRUE"
	args := []any{}
	if params.Status != "" && params.Status != "all" {
		args = append(args, params.Status)
		where += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	if params.From != nil {
		args = append(args, *params.From)
		where += fmt.Sprintf(" AND p.published_at >= $%d", len(args))
	}
	if params.To != nil {
		args = append(args, *params.To)
		where += fmt.Sprintf(" AND p.published_at < $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE %s ORDER BY %s %s NULLS LAST, p.id %s LIMIT $%d OFFSET $%d`,
		where, sortCol, dir, dir, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Status, &p.AuthorID, &p.AuthorName,
			&p.PublishedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	return list, total, rows.Err()
}

// GetPost fetches the single-post view: the row plus its comment count
// and latest comment timestamp.
func (r *Repository) GetPost(ctx context.Context, id int64) (*Post, error) {
	var p Post
	err := r.pool.QueryRow(ctx, `SELECT `+postColumns+`,
		(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
		(SELECT MAX(c.created_at) FROM comments c WHERE c.post_id = p.id)
		FROM posts p JOIN users u ON u.id = p.author_id WHERE p.id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Status, &p.AuthorID, &p.AuthorName,
			&p.PublishedAt, &p.CreatedAt, &p.UpdatedAt, &p.CommentCount, &p.LastCommentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPost creates a post and returns its ID.
func (r *Repository) InsertPost(ctx context.Context, q db.Querier, p *Post) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO posts (title, slug, body, status, author_id, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		p.Title, p.Slug, p.Body, p.Status, p.AuthorID, p.PublishedAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicateTitle
	}
	return id, err
}

// UpdatePost persists title, slug, body, status and published_at.
func (r *Repository) UpdatePost(ctx context.Context, q db.Querier, p *Post) error {
	tag, err := q.Exec(ctx, `UPDATE posts SET title = $2, slug = $3, body = $4, status = $5,
		published_at = $6, updated_at = NOW() WHERE id = $1`,
		p.ID, p.Title, p.Slug, p.Body, p.Status, p.PublishedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateTitle
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes a post and its comments.
func (r *Repository) DeletePost(ctx context.Context, q db.Querier, id int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM comments WHERE post_id = $1`, id); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
