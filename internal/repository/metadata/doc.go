// Package metadata persists the durable record carried between cycles:
// the active profile, the latest candidate and the current known-good version.
package metadata
