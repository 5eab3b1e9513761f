package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPosts creates ann (with a profile and two posts tagged go) and bob
// (one untagged post, no profile).
func seedPosts(t *testing.T) *blog {
	t.Helper()
	b := newBlog(t)
	ctx := context.Background()
	users := b.users(t, "ann", "bob")

	_, err := b.orm.Objects(b.profile).Create(ctx, Values{"bio": "gopher", "user": users[0]})
	require.NoError(t, err)
	tag, err := b.orm.Objects(b.tag).Create(ctx, Values{"name": "go"})
	require.NoError(t, err)

	for _, p := range []struct {
		title  string
		author *Instance
		tagged bool
	}{
		{"one", users[0], true},
		{"two", users[0], true},
		{"three", users[1], false},
	} {
		post, err := b.orm.Objects(b.post).Create(ctx, Values{"title": p.title, "author": p.author})
		require.NoError(t, err)
		if p.tagged {
			m, err := post.M2M(ctx, "tags")
			require.NoError(t, err)
			require.NoError(t, m.Add(ctx, tag))
		}
	}
	return b
}

func queries(b *blog) int {
	return b.logs.FilterMessage("query").Len()
}

func TestQuerySet_SelectRelated(t *testing.T) {
	b := seedPosts(t)
	ctx := context.Background()

	before := queries(b)
	posts, err := b.orm.Objects(b.post).SelectRelated("author__profile").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queries(b)-before)
	require.Len(t, posts, 3)

	author, ok := posts[0].Get("author").(*Instance)
	require.True(t, ok)
	assert.Equal(t, "ann", author.Get("name"))
	profile, ok := author.Get("profile").(*Instance)
	require.True(t, ok)
	assert.Equal(t, "gopher", profile.Get("bio"))

	// bob has no profile: the join is empty, not missing
	bob := posts[2].Get("author").(*Instance)
	assert.Nil(t, bob.Get("profile"))
	none, err := bob.Related(ctx, "profile")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, 1, queries(b)-before)
}

func TestQuerySet_SelectRelatedRejectsCollections(t *testing.T) {
	b := seedPosts(t)

	assert.ErrorIs(t, b.orm.Objects(b.user).SelectRelated("posts").Err(), ErrUsage)
	assert.ErrorIs(t, b.orm.Objects(b.post).SelectRelated("tags").Err(), ErrUsage)
	assert.ErrorIs(t, b.orm.Objects(b.post).SelectRelated("author__posts").Err(), ErrUsage)
	assert.ErrorIs(t, b.orm.Objects(b.post).SelectRelated("editor").Err(), ErrUsage)
}

func TestQuerySet_PrefetchRelated(t *testing.T) {
	b := seedPosts(t)
	ctx := context.Background()

	before := queries(b)
	users, err := b.orm.Objects(b.user).PrefetchRelated("posts__tags", "posts", "profile").All(ctx)
	require.NoError(t, err)
	// users, posts, tags and profiles; the shared "posts" level is reused
	assert.Equal(t, 4, queries(b)-before)
	require.Len(t, users, 2)

	annPosts, err := users[0].Collection(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, annPosts, 2)
	tags := annPosts[0].Get("tags").([]*Instance)
	require.Len(t, tags, 1)
	assert.Equal(t, "go", tags[0].Get("name"))
	// both posts share one tag instance within a prefetch level
	assert.Same(t, tags[0], annPosts[1].Get("tags").([]*Instance)[0])

	bobPosts := users[1].Get("posts").([]*Instance)
	require.Len(t, bobPosts, 1)
	assert.Empty(t, bobPosts[0].Get("tags"))
	assert.Nil(t, users[1].Get("profile"))
	assert.Equal(t, "gopher", users[0].Get("profile").(*Instance).Get("bio"))

	m, err := annPosts[0].M2M(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 4, queries(b)-before)
}

func TestQuerySet_PrefetchForward(t *testing.T) {
	b := seedPosts(t)
	ctx := context.Background()

	posts, err := b.orm.Objects(b.post).PrefetchRelated("author").All(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Same(t, posts[0].Get("author"), posts[1].Get("author"))
	assert.Equal(t, "bob", posts[2].Get("author").(*Instance).Get("name"))
}
