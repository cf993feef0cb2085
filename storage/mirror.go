package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siilo/siilo/interfaces"
)

// MirrorBackend replicates blobs across multiple backends.
//
// Put writes to every replica and fails if any replica fails, so a
// successful write is readable from all of them. Get and Stat return the
// first replica's answer, falling through to the next replica only on
// unavailability (a not-found from a reachable replica is authoritative).
// Delete removes from every reachable replica and reports not found only
// when no replica had the blob. List delegates to the first replica that
// answers. There is no cross-replica atomicity: a failed Put can leave
// replicas diverged, surfaced as an error for the caller to reconcile.
type MirrorBackend struct {
	backends []interfaces.Backend
	log      *slog.Logger
}

// NewMirrorBackend creates a mirror over the given backends, in priority
// order for reads.
func NewMirrorBackend(backends []interfaces.Backend, log *slog.Logger) (*MirrorBackend, error) {
	if len(backends) == 0 {
		return nil, errors.New("mirror requires at least one backend")
	}
	if log == nil {
		log = slog.Default()
	}
	return &MirrorBackend{backends: backends, log: log}, nil
}

// Put writes the blob to every replica.
func (m *MirrorBackend) Put(ctx context.Context, path string, data []byte, contentType string) error {
	var errs []error
	for _, backend := range m.backends {
		if err := backend.Put(ctx, path, data, contentType); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Mirror replica write failed",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path),
				"err", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("mirror write incomplete (%d/%d replicas failed): %w", len(errs), len(m.backends), errs[0])
	}
	return nil
}

// Get returns the blob from the first replica that answers.
func (m *MirrorBackend) Get(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	var lastErr error

	for _, backend := range m.backends {
		data, err := backend.Get(ctx, path)
		if err == nil {
			m.log.Debug("Fetched blob from mirror replica",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		if errors.Is(err, interfaces.ErrNotFound) {
			// A reachable replica's not-found is authoritative.
			return nil, err
		}
		lastErr = fmt.Errorf("%s: %w", backend.Name(), err)
		m.log.Debug("Mirror replica unavailable for read",
			slog.String("backend_name", backend.Name()),
			"err", err)
	}
	return nil, lastErr
}

// Exists reports presence on the first replica that answers.
func (m *MirrorBackend) Exists(ctx context.Context, path string) (bool, error) {
	var lastErr error
	for _, backend := range m.backends {
		ok, err := backend.Exists(ctx, path)
		if err == nil {
			return ok, nil
		}
		lastErr = fmt.Errorf("%s: %w", backend.Name(), err)
	}
	return false, lastErr
}

// Delete removes the blob from every reachable replica.
func (m *MirrorBackend) Delete(ctx context.Context, path string) error {
	deleted := false
	var lastErr error

	for _, backend := range m.backends {
		err := backend.Delete(ctx, path)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, interfaces.ErrNotFound):
			// Replica never had it; fine as long as some replica did.
		default:
			lastErr = fmt.Errorf("%s: %w", backend.Name(), err)
			m.log.Warn("Mirror replica delete failed",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path),
				"err", err)
		}
	}

	if lastErr != nil {
		return lastErr
	}
	if !deleted {
		return interfaces.ErrNotFound
	}
	return nil
}

// List delegates to the first replica that answers.
func (m *MirrorBackend) List(ctx context.Context, prefix string) (interfaces.ObjectIterator, error) {
	var lastErr error
	for _, backend := range m.backends {
		it, err := backend.List(ctx, prefix)
		if err == nil {
			return it, nil
		}
		lastErr = fmt.Errorf("%s: %w", backend.Name(), err)
	}
	return nil, lastErr
}

// Stat returns metadata from the first replica that answers.
func (m *MirrorBackend) Stat(ctx context.Context, path string) (interfaces.ObjectInfo, error) {
	var lastErr error
	for _, backend := range m.backends {
		info, err := backend.Stat(ctx, path)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, interfaces.ErrNotFound) {
			return interfaces.ObjectInfo{}, err
		}
		lastErr = fmt.Errorf("%s: %w", backend.Name(), err)
	}
	return interfaces.ObjectInfo{}, lastErr
}

// Name returns a unique identifier for this storage backend.
func (m *MirrorBackend) Name() string {
	return "mirror"
}

// LocationURI returns the URI that identifies this storage backend.
func (m *MirrorBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "mirror:[" + strings.Join(locations, ",") + "]"
}
