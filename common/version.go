package common

// PackageName is the service identifier used for metrics namespaces and
// logging tags.
const PackageName = "siilo"

// Version is set at build time via -ldflags.
var Version = "dev"
