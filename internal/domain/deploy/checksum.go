package deploy

import (
	"crypto"

	// Register the digests published next to every artifact.
	_ "crypto/md5"  //nolint:gosec // Published by the repository, compared alongside SHA-1.
	_ "crypto/sha1" //nolint:gosec // Published by the repository, compared alongside MD5.
)

// Algorithm is a reference digest published by the artifact repository.
type Algorithm struct {
	// Name is the display name used in fault messages.
	Name string
	// Extension is appended to the artifact URL to fetch the digest.
	Extension string
	// Hash computes the digest locally.
	Hash crypto.Hash
}

//nolint:gochecknoglobals // Fixed set of published digests.
var (
	// SHA1 is the ".sha1" digest.
	SHA1 = Algorithm{Name: "SHA-1", Extension: "sha1", Hash: crypto.SHA1}
	// MD5 is the ".md5" digest.
	MD5 = Algorithm{Name: "MD5", Extension: "md5", Hash: crypto.MD5}
)

// ReferenceAlgorithms are checked in order by the validate stage.
func ReferenceAlgorithms() []Algorithm {
	return []Algorithm{SHA1, MD5}
}
