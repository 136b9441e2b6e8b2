package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// DefaultFileMode is the mode of installed jars.
const DefaultFileMode os.FileMode = 0o644

var (
	errHashUnavailable = errors.New("hash function unavailable")
	errEmptyVersion    = errors.New("version must not be empty")
)

// Directory resolves and installs artifact files below a root directory.
type Directory struct {
	// root is the directory holding the jars.
	root string
	// artifactID prefixes every jar name.
	artifactID string
}

// NewDirectory creates a Directory for artifactID below root.
func NewDirectory(root, artifactID string) *Directory {
	return &Directory{
		root:       filepath.Clean(root),
		artifactID: artifactID,
	}
}

// FilePath returns the local path of version's jar, whether or not it exists.
func (d *Directory) FilePath(version string) (string, error) {
	if version == "" {
		return "", errEmptyVersion
	}

	return filepath.Join(d.root, fmt.Sprintf("%s-%s.jar", d.artifactID, version)), nil
}

// Exists reports whether path is present as a regular file.
func (d *Directory) Exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// Install writes the contents of r to path atomically. When sha1 is set the
// content must match it before the target is replaced.
// A partially written placeholder is removed when the install fails.
func (d *Directory) Install(ctx context.Context, path string, r io.Reader, sha1 []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	// go-update swaps the target out, so it has to exist beforehand.
	created := false

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		placeholder, createErr := os.Create(filepath.Clean(path))
		if createErr != nil {
			return fmt.Errorf("create artifact placeholder: %w", createErr)
		}

		_ = placeholder.Close()
		created = true
	}

	options := goupdate.Options{
		TargetPath: path,
		TargetMode: DefaultFileMode,
	}

	if len(sha1) > 0 {
		options.Checksum = sha1
		options.Hash = deploy.SHA1.Hash
	}

	if err := goupdate.Apply(r, options); err != nil {
		if created {
			_ = os.Remove(path)
		}

		logger.WarnKV(ctx, "Artifact install failed", "path", path, "error", err)

		return fmt.Errorf("install artifact %s: %w", filepath.Base(path), err)
	}

	logger.InfoKV(ctx, "Artifact installed", "path", path)

	return nil
}

// Digest computes the alg digest of the file at path.
func (d *Directory) Digest(path string, alg deploy.Algorithm) ([]byte, error) {
	if !alg.Hash.Available() {
		return nil, fmt.Errorf("%s: %w", alg.Name, errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := alg.Hash.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate %s checksum: %w", alg.Name, err)
	}

	return hasher.Sum(nil), nil
}

// Remove deletes the file at path. A missing file is not an error.
func (d *Directory) Remove(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", filepath.Base(path), err)
	}

	logger.InfoKV(ctx, "Artifact removed", "path", path)

	return nil
}
