package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/siilo/siilo/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileBackend(t *testing.T) (*FileBackend, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewFileBackend(dir, logger)
	require.NoError(t, err)
	return backend, dir
}

func TestFileBackendPathsCannotEscapeBase(t *testing.T) {
	ctx := context.Background()
	backend, dir := newTestFileBackend(t)

	outside := filepath.Join(filepath.Dir(dir), "escaped.txt")
	require.NoError(t, backend.Put(ctx, "../escaped.txt", []byte("x"), ""))

	_, err := os.Stat(outside)
	assert.True(t, os.IsNotExist(err), "dot segments must not traverse above the base directory")

	// The collapsed path lands inside the base instead.
	got, err := backend.Get(ctx, "escaped.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestFileBackendLeadingSlashIsEquivalent(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestFileBackend(t)

	require.NoError(t, backend.Put(ctx, "/x/y.txt", []byte("hello"), ""))

	got, err := backend.Get(ctx, "x/y.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestFileBackendPutLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	backend, dir := newTestFileBackend(t)

	require.NoError(t, backend.Put(ctx, "a/b.txt", []byte("one"), ""))
	require.NoError(t, backend.Put(ctx, "a/b.txt", []byte("two"), ""))

	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name())
}

func TestFileBackendListPreservesPrefixForm(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestFileBackend(t)

	require.NoError(t, backend.Put(ctx, "x/y.txt", []byte("1"), ""))
	require.NoError(t, backend.Put(ctx, "x/z/deep.txt", []byte("2"), ""))
	require.NoError(t, backend.Put(ctx, "xother.txt", []byte("3"), ""))

	t.Run("slash-rooted prefix yields slash-rooted paths", func(t *testing.T) {
		it, err := backend.List(ctx, "/x/")
		require.NoError(t, err)
		defer it.Close()

		paths := drainIterator(t, it)
		sort.Strings(paths)
		assert.Equal(t, []string{"/x/y.txt", "/x/z/deep.txt"}, paths)
	})

	t.Run("trailing slash excludes sibling names", func(t *testing.T) {
		it, err := backend.List(ctx, "x/")
		require.NoError(t, err)
		defer it.Close()

		paths := drainIterator(t, it)
		sort.Strings(paths)
		assert.Equal(t, []string{"x/y.txt", "x/z/deep.txt"}, paths)
	})

	t.Run("bare prefix matches sibling names too", func(t *testing.T) {
		it, err := backend.List(ctx, "x")
		require.NoError(t, err)
		defer it.Close()

		paths := drainIterator(t, it)
		sort.Strings(paths)
		assert.Equal(t, []string{"x/y.txt", "x/z/deep.txt", "xother.txt"}, paths)
	})

	t.Run("prefix under a missing directory lists nothing", func(t *testing.T) {
		it, err := backend.List(ctx, "missing/dir/")
		require.NoError(t, err)
		defer it.Close()
		assert.Empty(t, drainIterator(t, it))
	})
}

func TestFileBackendDirectoriesAreNotBlobs(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestFileBackend(t)

	require.NoError(t, backend.Put(ctx, "dir/file.txt", []byte("x"), ""))

	ok, err := backend.Exists(ctx, "dir")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = backend.Stat(ctx, "dir")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound), "got %v", err)
}

func TestFileBackendLocation(t *testing.T) {
	backend, dir := newTestFileBackend(t)
	assert.Equal(t, "file://"+dir, backend.LocationURI())
	assert.Equal(t, "file-"+filepath.Base(dir), backend.Name())
}
