package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/repository/blocklist"
	"github.com/oshokin/deploykeeper/internal/repository/metadata"
)

// ErrNotBlocklisted is returned by Unblock for versions without a marker.
var ErrNotBlocklisted = errors.New("version is not blocklisted")

// Report is the state printed by the status command.
type Report struct {
	// Actor is the host and account running the supervisor.
	Actor Actor `yaml:"actor"`
	// Health is the live health of the managed application.
	Health string `yaml:"health"`
	// RunningVersion is the version the application reports, if resolved.
	RunningVersion string `yaml:"running_version,omitempty"`
	// CurrentVersion is the last known-good version.
	CurrentVersion string `yaml:"current_version,omitempty"`
	// LatestVersion is the last upgrade candidate.
	LatestVersion string `yaml:"latest_version,omitempty"`
	// Profile is the profile of the last cycle.
	Profile string `yaml:"profile,omitempty"`
	// Blocked lists active blocklist entries of the known versions.
	Blocked []deploy.BlocklistEntry `yaml:"blocked,omitempty"`
}

// Unblock removes the blocklist marker of version and returns the removed entry.
func (s *Supervisor) Unblock(ctx context.Context, version string) (*deploy.BlocklistEntry, error) {
	path, err := s.store.FilePath(version)
	if err != nil {
		return nil, err
	}

	entry, err := s.blocklist.Entry(ctx, path)
	if errors.Is(err, blocklist.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", version, ErrNotBlocklisted)
	}

	if err != nil {
		logger.WarnKV(ctx, "Blocklist marker is unreadable, removing it", "version", version, "error", err)

		entry = &deploy.BlocklistEntry{Artifact: path}
	}

	if err = s.blocklist.Remove(ctx, path); err != nil {
		return nil, err
	}

	return entry, nil
}

// Status collects live health, the reported version and the durable record.
func (s *Supervisor) Status(ctx context.Context) (*Report, error) {
	report := &Report{
		Actor:  s.actor,
		Health: s.monitor.Status(ctx).String(),
	}

	if info := s.monitor.VersionInfo(ctx); info.Resolved {
		report.RunningVersion = info.Version
	}

	record, err := s.records.Load(ctx)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return report, nil
	case err != nil:
		return nil, fmt.Errorf("load metadata record: %w", err)
	}

	report.CurrentVersion = record.CurrentVersion
	report.LatestVersion = record.LatestVersion
	report.Profile = record.Profile

	versions := []string{record.CurrentVersion}
	if record.LatestVersion != record.CurrentVersion {
		versions = append(versions, record.LatestVersion)
	}

	for _, version := range versions {
		if version == "" {
			continue
		}

		path, pathErr := s.store.FilePath(version)
		if pathErr != nil {
			continue
		}

		if entry, entryErr := s.blocklist.Entry(ctx, path); entryErr == nil && entry.Active(time.Now()) {
			report.Blocked = append(report.Blocked, *entry)
		}
	}

	return report, nil
}
