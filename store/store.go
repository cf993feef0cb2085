package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siilo/siilo/interfaces"
	"github.com/siilo/siilo/metrics"
	"github.com/siilo/siilo/registry"
)

// Store is the locator-addressed facade over a scheme registry. Every
// operation parses its locator, resolves the backend registered for the
// scheme and delegates; callers never see backend construction or native
// client errors, only the uniform taxonomy.
type Store struct {
	registry *registry.Registry
	log      *slog.Logger
}

// New creates a store over the given registry.
func New(reg *registry.Registry, log *slog.Logger) *Store {
	return &Store{registry: reg, log: log}
}

// Read returns the blob addressed by locator.
func (s *Store) Read(ctx context.Context, locator string) (data []byte, err error) {
	loc, backend, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	defer s.observe(loc.Scheme, "read", time.Now(), &err)

	data, err = backend.Get(ctx, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc.String(), err)
	}
	return data, nil
}

// Write stores data under locator with no content type.
func (s *Store) Write(ctx context.Context, locator string, data []byte) error {
	return s.WriteTyped(ctx, locator, data, "")
}

// WriteTyped stores data under locator, recording the content type on
// backends that keep one.
func (s *Store) WriteTyped(ctx context.Context, locator string, data []byte, contentType string) (err error) {
	loc, backend, err := s.resolve(locator)
	if err != nil {
		return err
	}
	defer s.observe(loc.Scheme, "write", time.Now(), &err)

	if err = backend.Put(ctx, loc.Path, data, contentType); err != nil {
		return fmt.Errorf("%s: %w", loc.String(), err)
	}

	s.log.Debug("Wrote blob",
		slog.String("locator", loc.String()),
		slog.Int("size", len(data)))
	return nil
}

// Exists reports whether a blob is stored under locator.
func (s *Store) Exists(ctx context.Context, locator string) (ok bool, err error) {
	loc, backend, err := s.resolve(locator)
	if err != nil {
		return false, err
	}
	defer s.observe(loc.Scheme, "exists", time.Now(), &err)

	ok, err = backend.Exists(ctx, loc.Path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", loc.String(), err)
	}
	return ok, nil
}

// Remove deletes the blob addressed by locator.
func (s *Store) Remove(ctx context.Context, locator string) (err error) {
	loc, backend, err := s.resolve(locator)
	if err != nil {
		return err
	}
	defer s.observe(loc.Scheme, "remove", time.Now(), &err)

	if err = backend.Delete(ctx, loc.Path); err != nil {
		return fmt.Errorf("%s: %w", loc.String(), err)
	}

	s.log.Debug("Removed blob", slog.String("locator", loc.String()))
	return nil
}

// List enumerates blobs whose locator begins with the given locator prefix.
// The prefix must carry a scheme ("mem://x/"); the iterator yields full
// locators in the same scheme.
func (s *Store) List(ctx context.Context, locatorPrefix string) (it interfaces.ObjectIterator, err error) {
	loc, backend, err := s.resolve(locatorPrefix)
	if err != nil {
		return nil, err
	}
	defer s.observe(loc.Scheme, "list", time.Now(), &err)

	inner, err := backend.List(ctx, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc.String(), err)
	}
	return &locatorIterator{scheme: loc.Scheme, inner: inner}, nil
}

// Stat returns metadata for the blob addressed by locator.
func (s *Store) Stat(ctx context.Context, locator string) (info interfaces.ObjectInfo, err error) {
	loc, backend, err := s.resolve(locator)
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}
	defer s.observe(loc.Scheme, "stat", time.Now(), &err)

	info, err = backend.Stat(ctx, loc.Path)
	if err != nil {
		return interfaces.ObjectInfo{}, fmt.Errorf("%s: %w", loc.String(), err)
	}
	info.Path = interfaces.Locator{Scheme: loc.Scheme, Path: info.Path}.String()
	return info, nil
}

// Schemes returns the registered locator schemes.
func (s *Store) Schemes() []string {
	return s.registry.Schemes()
}

// resolve parses the locator and looks up its backend.
func (s *Store) resolve(locator string) (interfaces.Locator, interfaces.Backend, error) {
	loc, err := interfaces.ParseLocator(locator)
	if err != nil {
		return interfaces.Locator{}, nil, err
	}
	backend, err := s.registry.Resolve(loc.Scheme)
	if err != nil {
		return interfaces.Locator{}, nil, fmt.Errorf("%s: %w", locator, err)
	}
	return loc, backend, nil
}

// observe records the operation's metrics, reading err through a pointer so
// deferred calls see the final value.
func (s *Store) observe(scheme, operation string, start time.Time, err *error) {
	metrics.ObserveOperation(scheme, operation, start, *err)
}

// locatorIterator turns a backend's path iterator into a locator iterator.
type locatorIterator struct {
	scheme string
	inner  interfaces.ObjectIterator
}

func (it *locatorIterator) Next(ctx context.Context) (string, error) {
	p, err := it.inner.Next(ctx)
	if err != nil {
		return "", err
	}
	return interfaces.Locator{Scheme: it.scheme, Path: p}.String(), nil
}

func (it *locatorIterator) Close() error {
	return it.inner.Close()
}
