// Package store is the entry point of the storage abstraction layer: a
// facade that addresses blobs by locator ("scheme://path") and routes each
// operation to the backend registered for the scheme.
//
// Usage:
//
//	reg := registry.New()
//	reg.Register("mem", storage.NewMemoryBackend())
//
//	st := store.New(reg, logger)
//	st.Write(ctx, "mem://x/y.txt", []byte("hello"))
//	data, err := st.Read(ctx, "mem://x/y.txt")
//
// All errors wrap the sentinel taxonomy of the interfaces package, so
// callers branch with errors.Is regardless of which backend served the
// operation. Locator prefixes passed to List must carry a non-empty path;
// a backend cannot be enumerated wholesale through the facade.
package store
