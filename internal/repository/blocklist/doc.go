// Package blocklist persists time-bounded blocks on artifact files.
//
// A block is a YAML marker written next to the jar (<jar>.blocklisted). It
// expires on its own: an entry past its BlockedUntil instant behaves exactly
// like a missing one, and no cleanup pass is needed. Deleting the marker is
// the manual way to lift a block early.
package blocklist
