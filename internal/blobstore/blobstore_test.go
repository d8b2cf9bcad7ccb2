package blobstore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverasc/datalens-backend/internal/logger"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	store, err := NewDiskStore(filepath.Join(t.TempDir(), "blobs"), log)
	require.NoError(t, err)
	return store
}

func TestSaveReadRoundtrip(t *testing.T) {
	store := newTestStore(t)

	ref, err := store.Save([]byte("a,b\n1,2\n"), "sales.csv")
	require.NoError(t, err)

	content, err := store.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n1,2\n"), content)
}

func TestSaveSameNameYieldsDistinctRefs(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Save([]byte("one"), "sales.csv")
	require.NoError(t, err)
	second, err := store.Save([]byte("two"), "sales.csv")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	c1, err := store.Read(first)
	require.NoError(t, err)
	c2, err := store.Read(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), c1)
	assert.Equal(t, []byte("two"), c2)
}

func TestReadMissingBlob(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read("/nonexistent/blob.csv")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	ref, err := store.Save([]byte("x"), "sales.csv")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ref))
	require.NoError(t, store.Delete(ref))

	_, err = store.Read(ref)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveStripsPathComponents(t *testing.T) {
	store := newTestStore(t)

	ref, err := store.Save([]byte("x"), "../../etc/passwd")
	require.NoError(t, err)
	assert.False(t, strings.Contains(ref, ".."))

	content, err := store.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), content)
}
