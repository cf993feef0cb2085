package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/siilo/siilo/interfaces"
	"github.com/siilo/siilo/registry"
	"github.com/siilo/siilo/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("mem", storage.NewMemoryBackend()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, logger)
}

func TestStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Write(ctx, "mem://x/y.txt", []byte("hello")))

	data, err := st.Read(ctx, "mem://x/y.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	ok, err := st.Exists(ctx, "mem://x/y.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	it, err := st.List(ctx, "mem://x/")
	require.NoError(t, err)
	locators := drainLocators(t, it)
	assert.Equal(t, []string{"mem://x/y.txt"}, locators)

	require.NoError(t, st.Remove(ctx, "mem://x/y.txt"))

	_, err = st.Read(ctx, "mem://x/y.txt")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound), "got %v", err)

	ok, err = st.Exists(ctx, "mem://x/y.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreListYieldsFullLocators(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Write(ctx, "mem://prefix/a", []byte("a")))
	require.NoError(t, st.Write(ctx, "mem://prefix/b", []byte("b")))
	require.NoError(t, st.Write(ctx, "mem://other/c", []byte("c")))

	it, err := st.List(ctx, "mem://prefix/")
	require.NoError(t, err)

	locators := drainLocators(t, it)
	sort.Strings(locators)
	assert.Equal(t, []string{"mem://prefix/a", "mem://prefix/b"}, locators)

	// Every yielded locator must resolve back through the store.
	for _, locator := range locators {
		_, err := st.Read(ctx, locator)
		require.NoError(t, err, "locator %q must round-trip", locator)
	}
}

func TestStoreSchemeIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Write(ctx, "MEM://x/y.txt", []byte("hello")))

	data, err := st.Read(ctx, "mem://x/y.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestStoreUnknownScheme(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Read(ctx, "gopher://x/y.txt")
	assert.True(t, errors.Is(err, interfaces.ErrUnknownScheme), "got %v", err)

	err = st.Write(ctx, "gopher://x/y.txt", []byte("x"))
	assert.True(t, errors.Is(err, interfaces.ErrUnknownScheme), "got %v", err)
}

func TestStoreMalformedLocator(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, locator := range []string{
		"no-delimiter",
		"://missing-scheme",
		"mem://",
		"bad scheme://x",
	} {
		_, err := st.Read(ctx, locator)
		assert.True(t, errors.Is(err, interfaces.ErrMalformedLocator), "locator %q: got %v", locator, err)
	}
}

func TestStoreStatReportsLocator(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.WriteTyped(ctx, "mem://doc.json", []byte(`{"a":1}`), "application/json"))

	info, err := st.Stat(ctx, "mem://doc.json")
	require.NoError(t, err)
	assert.Equal(t, "mem://doc.json", info.Path)
	assert.Equal(t, int64(7), info.Size)
	assert.Equal(t, "application/json", info.ContentType)
}

func TestStoreSchemes(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("mem", storage.NewMemoryBackend()))
	require.NoError(t, reg.Register("archive", storage.NewMemoryBackend()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := New(reg, logger)

	assert.Equal(t, []string{"archive", "mem"}, st.Schemes())
}

func drainLocators(t *testing.T, it interfaces.ObjectIterator) []string {
	t.Helper()
	defer it.Close()

	var locators []string
	for {
		locator, err := it.Next(context.Background())
		if err == io.EOF {
			return locators
		}
		require.NoError(t, err)
		locators = append(locators, locator)
	}
}
