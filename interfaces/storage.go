package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrMalformedLocator is returned when a locator string cannot be parsed.
	// The string never reaches a backend.
	ErrMalformedLocator = errors.New("malformed storage locator")

	// ErrUnknownScheme is returned when no backend is registered for the
	// locator's scheme. There is no default backend.
	ErrUnknownScheme = errors.New("unknown storage scheme")

	// ErrDuplicateScheme is returned when a scheme is registered twice.
	// The first registration stays in effect.
	ErrDuplicateScheme = errors.New("storage scheme already registered")

	// ErrNotFound is returned when an operation addresses a path that is
	// absent from the backend.
	ErrNotFound = errors.New("blob not found")

	// ErrBackendUnavailable is returned for network, connection, timeout,
	// and permission faults from the native client. Retrying the call may
	// succeed; retry policy belongs to the caller, never to this layer.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrBackendFault is the catch-all for native client errors with no
	// clean mapping. The wrapped message carries the backend's diagnostics
	// but never its original error type.
	ErrBackendFault = errors.New("storage backend fault")
)

// ObjectInfo holds the minimal metadata a backend reports for a blob.
type ObjectInfo struct {
	// Path is the blob's logical path within its backend.
	Path string

	// Size in bytes.
	Size int64

	// ContentType is the stored content type, empty when the backend does
	// not track one.
	ContentType string
}

// ObjectIterator is a lazy, finite, non-restartable sequence of blob paths.
// Ordering is backend-native and not guaranteed to be lexicographic. An
// iterator may be abandoned at any point; Close releases whatever the
// backend is holding (listing connections, pagination state). Close is
// idempotent and safe after exhaustion.
type ObjectIterator interface {
	// Next returns the next path, or io.EOF once the sequence is exhausted.
	// Backend faults surface as normalized errors (never raw client types).
	Next(ctx context.Context) (string, error)

	// Close releases resources held by the iteration.
	Close() error
}

// Backend is the uniform blob contract every storage adapter implements.
//
// Implementations must be safe for concurrent calls: adapters hold only
// immutable configuration and a native client, never call-scoped mutable
// state. All faults from the native client are translated into the
// package's uniform error values; no backend-specific error type ever
// reaches a caller. Timeouts are whatever the native client enforces,
// surfaced as ErrBackendUnavailable.
type Backend interface {
	// Put writes or overwrites the blob at path. Overwrite semantics are
	// backend-native (atomic where the backend supports it); each adapter
	// documents its own guarantee. contentType may be empty.
	Put(ctx context.Context, path string, data []byte, contentType string) error

	// Get returns the blob's content. Fails with ErrNotFound when absent.
	Get(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether a blob is present. Absence is a normal result,
	// never an error; errors indicate backend unreachability only.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the blob at path. Fails with ErrNotFound when absent,
	// so callers can tell "deleted" from "never existed".
	Delete(ctx context.Context, path string) error

	// List enumerates blob paths under a logical prefix.
	List(ctx context.Context, prefix string) (ObjectIterator, error)

	// Stat returns the blob's metadata. Fails with ErrNotFound when absent.
	Stat(ctx context.Context, path string) (ObjectInfo, error)

	// Name returns a unique identifier for logging.
	Name() string

	// LocationURI returns the URI this backend was constructed from.
	LocationURI() string
}
