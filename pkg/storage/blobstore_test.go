package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreSaveIsIdempotent(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Save([]byte("lecture slides"))
	require.NoError(t, err)
	require.False(t, first.AlreadyExisted)
	require.Equal(t, int64(len("lecture slides")), first.SizeBytes)
	require.FileExists(t, first.Locator)

	second, err := store.Save([]byte("lecture slides"))
	require.NoError(t, err)
	require.True(t, second.AlreadyExisted)
	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, first.Locator, second.Locator)
}

func TestBlobStoreDistinctContentDistinctBlobs(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	a, err := store.Save([]byte("a"))
	require.NoError(t, err)
	b, err := store.Save([]byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)
	require.NotEqual(t, a.Locator, b.Locator)
}

func TestBlobStoreRemove(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	blob, err := store.Save([]byte("to be removed"))
	require.NoError(t, err)
	require.NoError(t, store.Remove(blob.Locator))
	_, err = os.Stat(blob.Locator)
	require.True(t, os.IsNotExist(err))

	// removing twice is a no-op
	require.NoError(t, store.Remove(blob.Locator))
}

func TestBlobStoreLocatorUnderBlobsDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)

	blob, err := store.Save([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".blobs", blob.Hash), blob.Locator)
}

func TestSafeFilename(t *testing.T) {
	require.Equal(t, "file.bin", SafeFilename("   "))
	require.Equal(t, "a_b_c", SafeFilename("a/b\\c"))
	require.NotContains(t, SafeFilename("../etc/passwd"), "/")
	require.Equal(t, "notes.pdf", SafeFilename("notes.pdf"))
}
