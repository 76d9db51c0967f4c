// Package version carries build identity injected at link time.
package version

var (
	// Version is the current application version.
	// Populated by the build system (ldflags); falls back to dev.
	Version = "v0.1.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
