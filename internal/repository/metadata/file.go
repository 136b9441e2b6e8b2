package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/deploykeeper/internal/config"
)

// Record is the durable state of the supervisor.
type Record struct {
	// Profile is the profile the managed application was last launched with.
	Profile string `yaml:"profile"`
	// LatestVersion is the last upgrade candidate seen.
	LatestVersion string `yaml:"latest_version"`
	// LatestChecksum is the SHA-1 of the last candidate, hex encoded.
	LatestChecksum string `yaml:"latest_checksum,omitempty"`
	// CurrentVersion is the last known-good version, empty before the first success.
	CurrentVersion string `yaml:"current_version,omitempty"`
}

// Repository defines persistence operations for the metadata record.
type Repository interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
}

// FileRepository persists the record to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the record.
	path string
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// ErrNotFound is returned when the record does not exist yet.
var ErrNotFound = errors.New("metadata not found")

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	var record Record
	if err = yaml.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("decode metadata file: %w", err)
	}

	return &record, nil
}

// Save writes the record atomically: a temporary sibling is renamed over the target.
func (r *FileRepository) Save(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace metadata file: %w", err)
	}

	return nil
}
