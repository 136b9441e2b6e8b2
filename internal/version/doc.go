// Package version exposes build metadata for deploykeeper.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Short and Full render the version for CLI output and logs,
// UserAgent identifies the supervisor towards repositories and actuators.
package version
