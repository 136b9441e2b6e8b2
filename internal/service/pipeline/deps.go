package pipeline

import (
	"context"
	"io"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
)

// ArtifactSource downloads artifacts and their reference material.
type ArtifactSource interface {
	Fetch(ctx context.Context, version string) (io.ReadCloser, error)
	Checksum(ctx context.Context, version string, alg deploy.Algorithm) ([]byte, error)
	Signature(ctx context.Context, version string) ([]byte, error)
}

// Store resolves and installs local artifact files.
type Store interface {
	FilePath(version string) (string, error)
	Exists(path string) bool
	// Install refuses content whose SHA-1 differs from sha1 when sha1 is set.
	Install(ctx context.Context, path string, r io.Reader, sha1 []byte) error
	Digest(path string, alg deploy.Algorithm) ([]byte, error)
	Remove(ctx context.Context, path string) error
}

// Verifier checks a detached signature against trusted keys.
type Verifier interface {
	Verify(ctx context.Context, file string, signature []byte, keyPaths []string) bool
}

// Blocklist tracks artifacts that must not be downloaded or launched.
type Blocklist interface {
	Add(ctx context.Context, artifact, reason string) error
	IsBlocked(ctx context.Context, artifact string) bool
	MarkerPath(artifact string) string
}

// Monitor is the health signal of the managed application.
type Monitor interface {
	Status(ctx context.Context) deploy.HealthStatus
	Shutdown(ctx context.Context) bool
}

// Launcher starts a jar and classifies its startup.
type Launcher interface {
	Launch(ctx context.Context, jarPath string) *deploy.LaunchResult
}

// Notifier delivers notifications without reporting failures.
type Notifier interface {
	Send(ctx context.Context, subject, body string)
}

// Dependencies are the collaborators of the stages.
type Dependencies struct {
	// Source is the remote artifact repository.
	Source ArtifactSource
	// Store is the local jar directory.
	Store Store
	// Verifier checks artifact signatures.
	Verifier Verifier
	// TrustedKeys are passed to the Verifier.
	TrustedKeys []string
	// Blocklist records artifacts that failed.
	Blocklist Blocklist
	// BlocklistEnabled gates blocklist writes and the prepare-stage check.
	BlocklistEnabled bool
	// Monitor checks and stops the running application.
	Monitor Monitor
	// Launcher starts jars.
	Launcher Launcher
	// Notifier receives upgrade and rollback reports.
	Notifier Notifier
	// StopBeforeUpgrade shuts a healthy instance down before a different version is launched.
	StopBeforeUpgrade bool
}
