package pipeline

import (
	"context"
	"fmt"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// Start launches the candidate unless the same version is already healthy.
type Start struct {
	monitor           Monitor
	launcher          Launcher
	notifier          Notifier
	blocklist         Blocklist
	blocklistEnabled  bool
	stopBeforeUpgrade bool
}

// NewStart creates the start stage.
func NewStart(deps Dependencies) *Start {
	return &Start{
		monitor:           deps.Monitor,
		launcher:          deps.Launcher,
		notifier:          deps.Notifier,
		blocklist:         deps.Blocklist,
		blocklistEnabled:  deps.BlocklistEnabled,
		stopBeforeUpgrade: deps.StopBeforeUpgrade,
	}
}

// Name implements Stage.
func (s *Start) Name() string {
	return "start"
}

// Apply implements Stage.
func (s *Start) Apply(ctx context.Context, app *deploy.Application) Outcome {
	health := s.monitor.Status(ctx)

	if app.IsSameVersion() && health == deploy.HealthUp {
		logger.InfoKV(ctx, "Latest version is already running", "version", app.Latest.Version)

		return Continue(app)
	}

	if s.stopBeforeUpgrade && health == deploy.HealthUp && !app.IsSameVersion() {
		logger.InfoKV(ctx, "Stopping the running instance before the upgrade", "version", app.Latest.Version)

		if !s.monitor.Shutdown(ctx) {
			logger.Warn(ctx, "Running instance did not stop, launching anyway")
		}
	}

	latest := app.Latest
	result := s.launcher.Launch(ctx, latest.File)

	s.notifier.Send(ctx, fmt.Sprintf("Upgrade %s %s", result.Status, latest.FileName()), result.StartupLog)

	next := app.Clone()
	next.LaunchResult = result.Clone()

	switch result.Status {
	case deploy.LaunchSuccess:
		next.Current = next.Latest.Clone()

		logger.InfoKV(ctx, "Latest version promoted to current", "version", latest.Version)

		return Continue(next)
	case deploy.LaunchFailed, deploy.LaunchUnknown:
		return s.fail(ctx, next, health, result.Status)
	default:
		return s.fail(ctx, next, health, deploy.LaunchUnknown)
	}
}

// fail blocklists the candidate, stops a broken in-place upgrade and requests a rollback.
func (s *Start) fail(ctx context.Context, next *deploy.Application, before deploy.HealthStatus, status deploy.LaunchStatus) Outcome {
	latest := next.Latest

	if s.blocklistEnabled {
		if err := s.blocklist.Add(ctx, latest.File, "launch "+status.String()); err != nil {
			logger.ErrorKV(ctx, "Failed to blocklist artifact", "file", latest.FileName(), "error", err)
		}
	}

	if before == deploy.HealthUp {
		logger.Info(ctx, "Application was healthy before the launch, requesting shutdown")

		if !s.monitor.Shutdown(ctx) {
			logger.Warn(ctx, "Shutdown of the failed instance was not confirmed")
		}
	}

	fault := deploy.NewFault(deploy.LaunchFault, s.Name(), latest, "launch status "+status.String(), nil)

	return RollbackRequested(next, fault)
}
