// Package interfaces defines the shared contracts of the siilo storage
// abstraction layer: the Locator type and parser, the uniform Backend
// contract every storage adapter implements, and the normalized error
// taxonomy.
//
// # Locators
//
// Blobs are addressed by locator strings of the form:
//
//	scheme://path
//
// e.g. file:///var/data/report.pdf, s3://my-bucket/report.pdf,
// cmis://repo/documents/report.pdf. The scheme selects a registered backend;
// the path is interpreted by that backend. Parsing is pure and lossless:
// Locator.String reconstructs the input exactly.
//
// # Error taxonomy
//
// Every adapter translates its native client's faults into one of the
// uniform error values of this package before returning:
//
//   - ErrMalformedLocator : locator string unparsable
//   - ErrUnknownScheme    : no backend registered for the scheme
//   - ErrDuplicateScheme  : registration conflict at startup
//   - ErrNotFound         : path absent from the backend
//   - ErrBackendUnavailable : network/timeout/permission fault, retryable
//   - ErrBackendFault     : catch-all, carries the native message
//
// Callers match with errors.Is. No backend-specific error type ever crosses
// the Backend boundary, and no error is silently swallowed; Exists is the
// only operation that converts absence into a non-error result.
package interfaces
