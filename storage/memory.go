package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/siilo/siilo/interfaces"
)

// MemoryBackend is an in-memory storage backend. It keeps blobs in a map
// with no filesystem or network dependency, which makes it the backend of
// choice for tests and for the conformance suite. Safe for concurrent use.
//
// Overwrite is atomic (a single map assignment under the write lock).
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		blobs: make(map[string]memoryBlob),
	}
}

// Put stores a copy of data under path, overwriting any previous blob.
func (b *MemoryBackend) Put(_ context.Context, path string, data []byte, contentType string) error {
	copied := make([]byte, len(data))
	copy(copied, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[path] = memoryBlob{data: copied, contentType: contentType}
	return nil
}

// Get returns a copy of the blob's content.
func (b *MemoryBackend) Get(_ context.Context, path string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	blob, ok := b.blobs[path]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	copied := make([]byte, len(blob.data))
	copy(copied, blob.data)
	return copied, nil
}

// Exists reports whether a blob is stored under path.
func (b *MemoryBackend) Exists(_ context.Context, path string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[path]
	return ok, nil
}

// Delete removes the blob at path.
func (b *MemoryBackend) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.blobs[path]; !ok {
		return interfaces.ErrNotFound
	}
	delete(b.blobs, path)
	return nil
}

// List enumerates paths with the given prefix. The iterator serves a
// snapshot taken at call time; map iteration order applies.
func (b *MemoryBackend) List(_ context.Context, prefix string) (interfaces.ObjectIterator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var paths []string
	for path := range b.blobs {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	return newSliceIterator(paths), nil
}

// Stat returns size and content type for the blob at path.
func (b *MemoryBackend) Stat(_ context.Context, path string) (interfaces.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	blob, ok := b.blobs[path]
	if !ok {
		return interfaces.ObjectInfo{}, interfaces.ErrNotFound
	}
	return interfaces.ObjectInfo{
		Path:        path,
		Size:        int64(len(blob.data)),
		ContentType: blob.contentType,
	}, nil
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return "mem"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return "mem://"
}
