// Package artifact manages the local directory holding downloaded jars.
//
// It resolves the file of a version, installs downloaded bytes atomically
// with go-update and computes local digests for checksum verification.
package artifact
