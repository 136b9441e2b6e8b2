package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/repository/artifact"
	"github.com/oshokin/deploykeeper/internal/repository/blocklist"
	"github.com/oshokin/deploykeeper/internal/repository/metadata"
	"github.com/oshokin/deploykeeper/internal/service/actuator"
	"github.com/oshokin/deploykeeper/internal/service/launcher"
	"github.com/oshokin/deploykeeper/internal/service/maven"
	"github.com/oshokin/deploykeeper/internal/service/notify"
	"github.com/oshokin/deploykeeper/internal/service/pipeline"
	"github.com/oshokin/deploykeeper/internal/service/signature"
)

// LockFilename is the cross-process cycle lock inside the root directory.
const LockFilename = "deploykeeper.lock"

var (
	// ErrCycleInProgress is returned when another cycle holds the lock.
	ErrCycleInProgress = errors.New("another deployment cycle is in progress")
	// errUnknownLogLevel is returned for a log level the logger does not know.
	errUnknownLogLevel = errors.New("unknown log level")
)

// VersionSource answers which version is the newest release.
type VersionSource interface {
	LatestVersion(ctx context.Context) (string, error)
}

// Supervisor owns the collaborators of the deployment cycle.
type Supervisor struct {
	// cfg is the validated configuration.
	cfg *config.Config
	// pipeline runs the stages.
	pipeline *pipeline.Pipeline
	// versions answers the latest version query.
	versions VersionSource
	// store resolves local jars.
	store *artifact.Directory
	// blocklist keeps blocked artifacts.
	blocklist *blocklist.FileRepository
	// monitor watches the running application.
	monitor *actuator.Monitor
	// records persists the metadata record.
	records metadata.Repository
	// lock guards cycles across processes.
	lock *flock.Flock
	// actor is the host and account running the cycles.
	actor Actor
	// mu guards cycles inside this process.
	mu sync.Mutex
}

// New wires the supervisor from configuration.
func New(cfg *config.Config) (*Supervisor, error) {
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}

	source, err := maven.NewClient(cfg.Repository)
	if err != nil {
		return nil, err
	}

	store := artifact.NewDirectory(cfg.Root, cfg.Repository.ArtifactID)
	blocked := blocklist.NewFileRepository(cfg.Blocklist.Duration)
	monitor := actuator.NewMonitor(actuator.NewClient(cfg.Application, cfg.Actuator), cfg.Shutdown)

	deps := pipeline.Dependencies{
		Source:            source,
		Store:             store,
		Verifier:          signature.NewVerifier(),
		TrustedKeys:       cfg.Signature.TrustedKeys,
		Blocklist:         blocked,
		BlocklistEnabled:  cfg.Blocklist.Enabled,
		Monitor:           monitor,
		Launcher:          launcher.New(cfg, monitor),
		Notifier:          notify.New(cfg.Notify),
		StopBeforeUpgrade: cfg.Launch.StopBeforeUpgrade,
	}

	actor, err := DetectActor()
	if err != nil {
		return nil, fmt.Errorf("detect actor: %w", err)
	}

	return &Supervisor{
		actor:     actor,
		cfg:       cfg,
		pipeline:  pipeline.New(deps),
		versions:  source,
		store:     store,
		blocklist: blocked,
		monitor:   monitor,
		records:   metadata.NewFileRepository(cfg.MetadataFile),
		lock:      flock.New(filepath.Join(cfg.Root, LockFilename)),
	}, nil
}

// RunCycle runs one deployment cycle. The returned error covers the cycle
// machinery (lock, metadata record); pipeline faults are in the result.
func (s *Supervisor) RunCycle(ctx context.Context) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}

	if !locked {
		return nil, ErrCycleInProgress
	}

	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			logger.WarnKV(ctx, "Failed to release cycle lock", "error", unlockErr)
		}
	}()

	ctx = logger.WithKV(ctx, "cycle_id", uuid.NewString(), "actor", s.actor.String())
	started := time.Now()

	record, err := s.loadRecord(ctx)
	if err != nil {
		return nil, err
	}

	latest, fault := s.latestVersion(ctx)
	if fault != nil {
		logger.ErrorKV(ctx, "Cycle aborted", "error", fault)

		return &pipeline.Result{App: buildApplication(record, "", s.store), Fault: fault}, nil
	}

	app := buildApplication(record, latest, s.store)
	logger.InfoKV(ctx, "Cycle started", "current", versionOf(app.Current), "latest", latest)

	result := s.pipeline.Run(ctx, app)

	if err = s.records.Save(ctx, recordOf(s.cfg.Application.Profile, result.App)); err != nil {
		return result, fmt.Errorf("save metadata record: %w", err)
	}

	logger.InfoKV(ctx, "Cycle finished",
		"current", versionOf(result.App.Current),
		"duration", time.Since(started).Round(time.Millisecond),
		"failed", result.Fault != nil,
	)

	return result, nil
}

func (s *Supervisor) loadRecord(ctx context.Context) (*metadata.Record, error) {
	record, err := s.records.Load(ctx)
	if errors.Is(err, metadata.ErrNotFound) {
		logger.Info(ctx, "No metadata record yet, starting from scratch")

		return &metadata.Record{Profile: s.cfg.Application.Profile}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load metadata record: %w", err)
	}

	if record.Profile != "" && record.Profile != s.cfg.Application.Profile {
		logger.WarnKV(ctx, "Profile changed since the last cycle", "previous", record.Profile, "profile", s.cfg.Application.Profile)
	}

	return record, nil
}

// latestVersion returns the pinned version or asks the repository.
func (s *Supervisor) latestVersion(ctx context.Context) (string, *deploy.Fault) {
	if pinned := s.cfg.Application.LatestVersion; pinned != "" {
		return pinned, nil
	}

	latest, err := s.versions.LatestVersion(ctx)
	if err != nil {
		return "", deploy.NewFault(deploy.TransportFault, "query", nil, "query latest version", err)
	}

	return latest, nil
}

// buildApplication derives the cycle state from the durable record. The
// recorded checksum follows its version so Prepare can tell a validated
// local jar from a leftover one.
func buildApplication(record *metadata.Record, latest string, store *artifact.Directory) *deploy.Application {
	app := new(deploy.Application)

	if record.CurrentVersion != "" {
		app.Current = &deploy.Metadata{Version: record.CurrentVersion}

		if record.LatestVersion == record.CurrentVersion {
			app.Current.Checksum = record.LatestChecksum
		}

		if path, err := store.FilePath(record.CurrentVersion); err == nil && store.Exists(path) {
			app.Current.File = path
		}
	}

	if latest != "" {
		app.Latest = &deploy.Metadata{Version: latest}

		if record.LatestVersion == latest {
			app.Latest.Checksum = record.LatestChecksum
		}
	}

	return app
}

// recordOf is the durable part of the final cycle state.
func recordOf(profile string, app *deploy.Application) *metadata.Record {
	record := &metadata.Record{Profile: profile}

	if app == nil {
		return record
	}

	if app.Current != nil {
		record.CurrentVersion = app.Current.Version
	}

	if app.Latest != nil {
		record.LatestVersion = app.Latest.Version
		record.LatestChecksum = app.Latest.Checksum
	}

	return record
}

func versionOf(m *deploy.Metadata) string {
	if m == nil {
		return ""
	}

	return m.Version
}
