package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/oshokin/deploykeeper/internal/logger"
)

// errNoTrustedKeys is returned when no trusted key could be loaded.
var errNoTrustedKeys = errors.New("no trusted keys")

// Verifier is a boolean verification oracle for detached signatures.
// Malformed signatures, unreadable keys and unknown signers all yield false.
type Verifier struct{}

// NewVerifier creates a Verifier.
func NewVerifier() *Verifier {
	return new(Verifier)
}

// Verify reports whether signature is a valid armored detached signature of
// file made by one of the keys stored in keyPaths.
func (v *Verifier) Verify(ctx context.Context, file string, signature []byte, keyPaths []string) bool {
	err := v.verify(file, signature, keyPaths)
	if err != nil {
		logger.WarnKV(ctx, "Signature verification failed", "file", filepath.Base(file), "error", err)

		return false
	}

	logger.DebugKV(ctx, "Signature verified", "file", filepath.Base(file))

	return true
}

func (v *Verifier) verify(file string, signature []byte, keyPaths []string) error {
	keyring, err := readKeyring(keyPaths)
	if err != nil {
		return err
	}

	signed, err := os.Open(filepath.Clean(file))
	if err != nil {
		return fmt.Errorf("open signed file: %w", err)
	}

	defer func() {
		_ = signed.Close()
	}()

	if _, err = openpgp.CheckArmoredDetachedSignature(keyring, signed, bytes.NewReader(signature), nil); err != nil {
		return fmt.Errorf("check signature: %w", err)
	}

	return nil
}

// readKeyring merges every readable armored key file into one keyring.
func readKeyring(keyPaths []string) (openpgp.EntityList, error) {
	var (
		keyring openpgp.EntityList
		errs    []error
	)

	for _, path := range keyPaths {
		entities, err := readKeyFile(path)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		keyring = append(keyring, entities...)
	}

	if len(keyring) == 0 {
		errs = append(errs, errNoTrustedKeys)

		return nil, errors.Join(errs...)
	}

	return keyring, nil
}

func readKeyFile(path string) (openpgp.EntityList, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open trusted key: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("read trusted key %s: %w", filepath.Base(path), err)
	}

	return entities, nil
}
