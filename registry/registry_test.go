package registry

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/siilo/siilo/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend is a minimal Backend for registry tests.
type stubBackend struct {
	name string
}

func (s *stubBackend) Put(context.Context, string, []byte, string) error { return nil }
func (s *stubBackend) Get(context.Context, string) ([]byte, error) {
	return nil, interfaces.ErrNotFound
}
func (s *stubBackend) Exists(context.Context, string) (bool, error) { return false, nil }
func (s *stubBackend) Delete(context.Context, string) error         { return interfaces.ErrNotFound }
func (s *stubBackend) List(context.Context, string) (interfaces.ObjectIterator, error) {
	return emptyIterator{}, nil
}
func (s *stubBackend) Stat(context.Context, string) (interfaces.ObjectInfo, error) {
	return interfaces.ObjectInfo{}, interfaces.ErrNotFound
}
func (s *stubBackend) Name() string        { return s.name }
func (s *stubBackend) LocationURI() string { return s.name + "://" }

type emptyIterator struct{}

func (emptyIterator) Next(context.Context) (string, error) { return "", io.EOF }
func (emptyIterator) Close() error                         { return nil }

func TestRegistryResolve(t *testing.T) {
	reg := New()
	mem := &stubBackend{name: "mem"}
	require.NoError(t, reg.Register("mem", mem))

	resolved, err := reg.Resolve("mem")
	require.NoError(t, err)
	assert.Same(t, interfaces.Backend(mem), resolved)

	// Scheme matching is case-insensitive.
	resolved, err = reg.Resolve("MEM")
	require.NoError(t, err)
	assert.Same(t, interfaces.Backend(mem), resolved)
}

func TestRegistryUnknownScheme(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("file", &stubBackend{name: "file"}))

	_, err := reg.Resolve("s3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrUnknownScheme))
}

func TestRegistryDuplicateScheme(t *testing.T) {
	reg := New()
	first := &stubBackend{name: "first"}
	second := &stubBackend{name: "second"}

	require.NoError(t, reg.Register("s3", first))

	err := reg.Register("s3", second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrDuplicateScheme))

	// First registration stays in effect.
	resolved, err := reg.Resolve("s3")
	require.NoError(t, err)
	assert.Same(t, interfaces.Backend(first), resolved)

	// Case variants collide too: "S3" and "s3" are the same scheme.
	err = reg.Register("S3", second)
	assert.True(t, errors.Is(err, interfaces.ErrDuplicateScheme))
}

func TestRegistrySchemes(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("s3", &stubBackend{name: "s3"}))
	require.NoError(t, reg.Register("file", &stubBackend{name: "file"}))
	require.NoError(t, reg.Register("mem", &stubBackend{name: "mem"}))

	assert.Equal(t, []string{"file", "mem", "s3"}, reg.Schemes())
}
