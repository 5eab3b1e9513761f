package storage

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SaveAndDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLocal("", WithFs(fs))
	assert.Equal(t, DefaultRoot, l.Root())

	rel, err := l.Save("avatars", "Me.PNG", []byte("img"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "avatars/"))
	assert.True(t, strings.HasSuffix(rel, ".png"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(rel, "avatars/"), ".png"), 32)

	data, err := l.Open(rel)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	ok, err := l.Exists(rel)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Delete(rel))
	ok, err = l.Exists(rel)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Delete(rel))
}

func TestLocal_UniqueNames(t *testing.T) {
	l := NewLocal("files", WithFs(afero.NewMemMapFs()))
	a, err := l.Save("docs", "a.txt", nil)
	require.NoError(t, err)
	b, err := l.Save("docs", "a.txt", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocal_RejectsEscapes(t *testing.T) {
	l := NewLocal("files", WithFs(afero.NewMemMapFs()))
	assert.ErrorIs(t, l.Delete("../etc/passwd"), ErrInvalidPath)
	_, err := l.Exists("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocal_URL(t *testing.T) {
	assert.Equal(t, "/media/a/b.png", NewLocal("").URL("a/b.png"))
	assert.Equal(t, "https://cdn.example.com/a/b.png",
		NewLocal("", WithBaseURL("https://cdn.example.com/")).URL("a/b.png"))
}
