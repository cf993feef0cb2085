// Package registry provides the process-wide scheme-to-backend binding
// table. Bindings are established once at startup from configuration and
// never mutated afterwards; resolution is deterministic and side-effect
// free. The registry is an explicit object passed by reference to the store
// facade rather than a module-level singleton, keeping construction order
// visible and tests hermetic.
package registry
