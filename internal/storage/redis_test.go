package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisEmbeddingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisEmbeddingStore(context.Background(), RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisEmbeddingStore_GetPut(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEmbedding(ctx, "a", []float32{0.6, 0.8}))
	assert.True(t, mr.Exists(defaultRedisKeyPrefix+"a"))

	got, err := store.GetEmbedding(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, got)

	// first write wins
	require.NoError(t, store.PutEmbedding(ctx, "a", []float32{1, 0}))
	got, err = store.GetEmbedding(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, got)

	_, err = store.GetEmbedding(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisEmbeddingStore_BatchGet(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEmbedding(ctx, "x", []float32{1, 0}))
	require.NoError(t, store.PutEmbedding(ctx, "y", []float32{0, 1}))

	got, err := store.BatchGetEmbeddings(ctx, []string{"x", "ghost", "y"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []float32{0, 1}, got["y"])
	assert.NotContains(t, got, "ghost")

	ids := make([]string, MaxBatchGetKeys+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("k%d", i)
	}
	_, err = store.BatchGetEmbeddings(ctx, ids)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestRedisEmbeddingStore_Count(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.PutEmbedding(ctx, fmt.Sprintf("e%d", i), []float32{1}))
	}
	require.NoError(t, mr.Set("unrelated", "v"))

	n, err := store.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestNewRedisEmbeddingStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedisEmbeddingStore(context.Background(), RedisConfig{Address: addr})
	assert.Error(t, err)
}
