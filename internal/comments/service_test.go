package comments

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
	"github.com/inkwell-cms/inkwell/internal/coherence"
	"github.com/inkwell-cms/inkwell/internal/mutation"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

type memoryRunner struct{}

func (memoryRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

type postMeta struct {
	authorID  int64
	published bool
}

type memoryRepo struct {
	nextID   int64
	posts    map[int64]postMeta
	comments map[int64]*Comment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, posts: map[int64]postMeta{}, comments: map[int64]*Comment{}}
}

func (m *memoryRepo) ListForPost(ctx context.Context, postID int64) ([]Comment, error) {
	var out []Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetComment(ctx context.Context, id int64) (*Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	copied.ParentPublished = m.posts[c.PostID].published
	return &copied, nil
}

func (m *memoryRepo) ParentMeta(ctx context.Context, postID int64) (int64, bool, error) {
	meta, ok := m.posts[postID]
	if !ok {
		return 0, false, ErrPostNotFound
	}
	return meta.authorID, meta.published, nil
}

func (m *memoryRepo) InsertComment(ctx context.Context, q db.Querier, c *Comment) (int64, error) {
	id := m.nextID
	m.nextID++
	stored := *c
	stored.ID = id
	stored.CreatedAt = time.Now()
	m.comments[id] = &stored
	return id, nil
}

func (m *memoryRepo) UpdateComment(ctx context.Context, q db.Querier, id int64, body string) error {
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Body = body
	return nil
}

func (m *memoryRepo) DeleteComment(ctx context.Context, q db.Querier, id int64) error {
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

var _ RepositoryPort = (*memoryRepo)(nil)

type fixture struct {
	repo    *memoryRepo
	service *Service
	store   *cache.Store
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := authz.NewRegistry([]string{"admin", "editor"})
	registry.Replace([]authz.Role{
		{ID: 1, Name: "admin", Permissions: authz.AllPermissions()},
		{ID: 2, Name: "commenter", Permissions: []string{
			authz.PermViewComments, authz.PermCreateComments, authz.PermUpdateComments, authz.PermDeleteComments,
		}},
	})

	bus := change.NewBus(nil)
	store := cache.NewStore(client, nil)
	coherence.NewCoordinator(store, nil).Register(bus)

	repo := newMemoryRepo()
	repo.posts[10] = postMeta{authorID: 7, published: true}
	repo.posts[11] = postMeta{authorID: 7, published: false}

	pipeline := mutation.NewPipeline(memoryRunner{}, registry, bus, nil)
	return &fixture{
		repo:    repo,
		service: NewService(repo, pipeline, nil),
		store:   store,
		redis:   mr,
	}
}

var commenter = &authz.Principal{ID: 3, Roles: []string{"commenter"}}

func TestCreateEvictsParentPostKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Warm the parent post view and the comment aggregate.
	require.NoError(t, f.redis.Set(coherence.PostKey(10), "stale"))
	require.NoError(t, f.redis.Set(coherence.StatsKey(coherence.StatsComments), "stale"))
	require.NoError(t, f.redis.Set(coherence.PostKey(11), "unrelated"))

	comment, err := f.service.Create(ctx, commenter, 10, "first!")
	require.NoError(t, err)
	assert.Equal(t, int64(3), comment.AuthorID)

	assert.False(t, f.redis.Exists(coherence.PostKey(10)), "parent post view must be evicted")
	assert.False(t, f.redis.Exists(coherence.StatsKey(coherence.StatsComments)))
	assert.True(t, f.redis.Exists(coherence.PostKey(11)), "unrelated post stays warm")
}

func TestCreateRequiresPublishedParent(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), commenter, 11, "on a draft")
	assert.ErrorIs(t, err, ErrPostNotFound)

	_, err = f.service.Create(context.Background(), commenter, 404, "nowhere")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestCreateRequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), nil, 10, "anon")
	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonAuthenticationRequired, denied.Reason)
}

func TestAnonymousCanListPublishedPostComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, commenter, 10, "visible")
	require.NoError(t, err)

	list, err := f.service.ListForPost(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Draft post comments are not public.
	_, err = f.service.ListForPost(ctx, nil, 11)
	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
}

func TestUpdateOwnershipRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comment, err := f.service.Create(ctx, commenter, 10, "mine")
	require.NoError(t, err)

	other := &authz.Principal{ID: 9, Roles: []string{"commenter"}}
	_, err = f.service.Update(ctx, other, comment.ID, "hijack")
	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonNotOwner, denied.Reason)

	updated, err := f.service.Update(ctx, commenter, comment.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Body)
}

func TestDeleteEvictsParentPostKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comment, err := f.service.Create(ctx, commenter, 10, "short lived")
	require.NoError(t, err)

	require.NoError(t, f.redis.Set(coherence.PostKey(10), "stale"))
	require.NoError(t, f.service.Delete(ctx, commenter, comment.ID))
	assert.False(t, f.redis.Exists(coherence.PostKey(10)))
}
