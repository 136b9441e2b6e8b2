package blocklist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// MarkerSuffix is appended to an artifact path to form its blocklist marker.
const MarkerSuffix = ".blocklisted"

// ErrNotFound is returned when an artifact has no marker.
var ErrNotFound = errors.New("blocklist entry not found")

// FileRepository keeps one marker file per blocked artifact.
type FileRepository struct {
	// duration is how long a new entry blocks its artifact.
	duration time.Duration
	// now is the clock, replaceable in tests.
	now func() time.Time
	// mu serializes marker writes and reads.
	mu sync.Mutex
}

// Option configures a FileRepository.
type Option func(*FileRepository)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *FileRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewFileRepository creates a repository blocking artifacts for duration.
func NewFileRepository(duration time.Duration, opts ...Option) *FileRepository {
	r := &FileRepository{
		duration: duration,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// MarkerPath returns the marker file path for artifact.
func (r *FileRepository) MarkerPath(artifact string) string {
	return filepath.Clean(artifact) + MarkerSuffix
}

// Add blocks artifact from now on for the configured duration.
func (r *FileRepository) Add(ctx context.Context, artifact, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &deploy.BlocklistEntry{
		Artifact:     filepath.Clean(artifact),
		BlockedUntil: r.now().Add(r.duration).UTC(),
		Reason:       reason,
	}

	data, err := yaml.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode blocklist entry: %w", err)
	}

	if err = os.WriteFile(r.MarkerPath(artifact), data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write blocklist marker: %w", err)
	}

	logger.InfoKV(ctx, "Artifact blocklisted",
		"artifact", entry.Artifact, "until", entry.BlockedUntil.Format(time.RFC3339), "reason", reason)

	return nil
}

// IsBlocked reports whether artifact has an unexpired marker.
// Unreadable markers are treated as absent.
func (r *FileRepository) IsBlocked(ctx context.Context, artifact string) bool {
	entry, err := r.Entry(ctx, artifact)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WarnKV(ctx, "Ignoring unreadable blocklist marker", "artifact", artifact, "error", err)
		}

		return false
	}

	return entry.Active(r.now())
}

// Entry reads the marker of artifact, expired or not.
func (r *FileRepository) Entry(_ context.Context, artifact string) (*deploy.BlocklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.MarkerPath(artifact))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read blocklist marker: %w", err)
	}

	var entry deploy.BlocklistEntry
	if err = yaml.Unmarshal(contents, &entry); err != nil {
		return nil, fmt.Errorf("decode blocklist marker: %w", err)
	}

	return &entry, nil
}

// Remove lifts the block on artifact. Removing a missing entry returns ErrNotFound.
func (r *FileRepository) Remove(ctx context.Context, artifact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.MarkerPath(artifact)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}

		return fmt.Errorf("remove blocklist marker: %w", err)
	}

	logger.InfoKV(ctx, "Artifact removed from blocklist", "artifact", artifact)

	return nil
}
