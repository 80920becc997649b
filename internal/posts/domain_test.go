package posts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionPublishedAt(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-24 * time.Hour)

	t.Run("publishing stamps now", func(t *testing.T) {
		got := TransitionPublishedAt(StatusDraft, StatusPublished, nil, now)
		require.NotNil(t, got)
		assert.Equal(t, now, *got)
	})

	t.Run("unpublishing clears", func(t *testing.T) {
		got := TransitionPublishedAt(StatusPublished, StatusDraft, &earlier, now)
		assert.Nil(t, got)
	})

	t.Run("editing a published post preserves the stamp", func(t *testing.T) {
		got := TransitionPublishedAt(StatusPublished, StatusPublished, &earlier, now)
		require.NotNil(t, got)
		assert.Equal(t, earlier, *got)
	})

	t.Run("editing a draft stays unset", func(t *testing.T) {
		assert.Nil(t, TransitionPublishedAt(StatusDraft, StatusDraft, nil, now))
	})
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":             "hello-world",
		"  Spaces   everywhere  ":   "spaces-everywhere",
		"Crème brûlée für alle":     "creme-brulee-fur-alle",
		"100% Go":                   "100-go",
		"---":                       "",
		"Already-slugged-title":     "already-slugged-title",
		"MiXeD CaSe & SYMBOLS #42!": "mixed-case-symbols-42",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestPostVisibility(t *testing.T) {
	draft := &Post{Status: StatusDraft, AuthorID: 7}
	published := &Post{Status: StatusPublished, AuthorID: 7}

	assert.False(t, draft.PubliclyVisible())
	assert.True(t, published.PubliclyVisible())
	assert.Equal(t, int64(7), draft.OwnerID())
}
