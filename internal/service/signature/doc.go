// Package signature checks OpenPGP detached signatures of downloaded
// artifacts against a set of trusted armored public keys.
package signature
