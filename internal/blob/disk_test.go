package blob

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "uploads/x.png", []byte("data"), "image/png"))
	data, err := store.Get(ctx, "uploads/x.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	require.NoError(t, store.Put(ctx, "uploads/x.png", []byte("new"), "image/png"))
	data, _ = store.Get(ctx, "uploads/x.png")
	assert.Equal(t, []byte("new"), data)

	u, err := store.PresignGet(ctx, "uploads/x.png", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/blobs/uploads/x.png"))

	_, err = store.Get(ctx, "uploads/none.png")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.PresignGet(ctx, "uploads/none.png", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside", "/etc/passwd", "a/../../b"} {
		assert.Error(t, store.Put(context.Background(), key, []byte("x"), ""), key)
	}
}
