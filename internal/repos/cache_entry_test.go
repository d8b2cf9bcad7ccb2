package repos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverasc/datalens-backend/internal/types"
)

func newEntry(datasetID int64, signature string, payload string) *types.CacheEntry {
	return &types.CacheEntry{
		DatasetID: datasetID,
		Signature: signature,
		Payload:   []byte(payload),
		CreatedAt: time.Now().UTC(),
	}
}

func TestCachePutAndGet(t *testing.T) {
	repo := NewCacheEntryRepo(newTestDB(t), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "describe", `{"a":1}`)))

	payload, err := repo.Get(ctx, nil, 1, "describe")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), payload)
}

func TestCacheGetMiss(t *testing.T) {
	repo := NewCacheEntryRepo(newTestDB(t), newTestLogger(t))

	_, err := repo.Get(context.Background(), nil, 1, "describe")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheDuplicatePutKeepsFirstValue(t *testing.T) {
	repo := NewCacheEntryRepo(newTestDB(t), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "describe", "first")))
	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "describe", "second")))

	payload, err := repo.Get(ctx, nil, 1, "describe")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), payload)
}

func TestCacheSignaturesAreDistinctKeys(t *testing.T) {
	repo := NewCacheEntryRepo(newTestDB(t), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "chart:a:b", "ab")))
	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "chart:b:a", "ba")))

	ab, err := repo.Get(ctx, nil, 1, "chart:a:b")
	require.NoError(t, err)
	ba, err := repo.Get(ctx, nil, 1, "chart:b:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), ab)
	assert.Equal(t, []byte("ba"), ba)
}

func TestCacheDeleteByDatasetIDCascades(t *testing.T) {
	repo := NewCacheEntryRepo(newTestDB(t), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "describe", "s1")))
	require.NoError(t, repo.Put(ctx, nil, newEntry(1, "chart:a:b", "c1")))
	require.NoError(t, repo.Put(ctx, nil, newEntry(2, "describe", "s2")))

	require.NoError(t, repo.DeleteByDatasetID(ctx, nil, 1))

	_, err := repo.Get(ctx, nil, 1, "describe")
	require.ErrorIs(t, err, ErrCacheMiss)
	_, err = repo.Get(ctx, nil, 1, "chart:a:b")
	require.ErrorIs(t, err, ErrCacheMiss)

	payload, err := repo.Get(ctx, nil, 2, "describe")
	require.NoError(t, err)
	assert.Equal(t, []byte("s2"), payload)
}
