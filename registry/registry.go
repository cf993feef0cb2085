package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/siilo/siilo/interfaces"
)

// Registry maps locator schemes to storage backends. It is populated once
// during process startup and read-only afterwards, which keeps backend
// selection deterministic for the lifetime of the process and lets Resolve
// run lock-free from any goroutine.
//
// Register is not safe for concurrent use; call it from a single goroutine
// before the registry is handed to the store.
type Registry struct {
	backends map[string]interfaces.Backend
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		backends: make(map[string]interfaces.Backend),
	}
}

// Register binds a backend to a scheme. Schemes are case-insensitive.
// Fails with ErrDuplicateScheme when the scheme is already bound; the
// existing binding stays in effect, so a misconfigured second backend can
// never silently shadow the first.
func (r *Registry) Register(scheme string, backend interfaces.Backend) error {
	key := strings.ToLower(scheme)
	if key == "" {
		return fmt.Errorf("%w: empty scheme", interfaces.ErrMalformedLocator)
	}
	if _, exists := r.backends[key]; exists {
		return fmt.Errorf("%w: %q", interfaces.ErrDuplicateScheme, key)
	}
	r.backends[key] = backend
	return nil
}

// Resolve returns the backend bound to the scheme. Schemes are matched
// case-insensitively. Fails with ErrUnknownScheme when no backend is bound;
// there is no default backend.
func (r *Registry) Resolve(scheme string) (interfaces.Backend, error) {
	backend, ok := r.backends[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrUnknownScheme, scheme)
	}
	return backend, nil
}

// Schemes returns the registered schemes in lexicographic order.
func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.backends))
	for scheme := range r.backends {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}
