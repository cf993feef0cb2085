package interfaces

import (
	"fmt"
	"strings"
)

// Locator is a scheme-qualified blob address of the form scheme://path.
// The scheme selects a registered backend; the path is the backend-specific
// address of the blob. Both components are kept exactly as parsed so that
// String reconstructs the original locator byte for byte.
type Locator struct {
	// Scheme as it appeared in the locator string. Scheme matching is
	// case-insensitive; normalization happens at registry lookup, not here.
	Scheme string

	// Path is everything after the "://" delimiter, verbatim. Trailing
	// slashes are significant to some backends and must not be stripped.
	Path string
}

// ParseLocator parses a locator string into its scheme and path components.
// It fails with ErrMalformedLocator when the "://" delimiter is missing,
// the scheme is empty or contains characters outside [a-zA-Z0-9+.-], or the
// path is empty. The path is preserved verbatim: no escaping, no slash
// normalization. ParseLocator performs no I/O and never consults a backend.
func ParseLocator(raw string) (Locator, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return Locator{}, fmt.Errorf("%w: missing scheme delimiter in %q", ErrMalformedLocator, raw)
	}

	scheme := raw[:idx]
	if scheme == "" {
		return Locator{}, fmt.Errorf("%w: empty scheme in %q", ErrMalformedLocator, raw)
	}
	for _, r := range scheme {
		if !isSchemeRune(r) {
			return Locator{}, fmt.Errorf("%w: invalid scheme %q", ErrMalformedLocator, scheme)
		}
	}

	path := raw[idx+3:]
	if path == "" {
		return Locator{}, fmt.Errorf("%w: empty path in %q", ErrMalformedLocator, raw)
	}

	return Locator{Scheme: scheme, Path: path}, nil
}

// String reconstructs the locator string. For any locator accepted by
// ParseLocator, parse followed by String is the identity.
func (l Locator) String() string {
	return l.Scheme + "://" + l.Path
}

func isSchemeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '+' || r == '-' || r == '.':
		return true
	}
	return false
}
