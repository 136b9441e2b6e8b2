package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

var (
	// ErrRollbackSkipped is wrapped by rollback faults when no relaunch was attempted.
	ErrRollbackSkipped = errors.New("rollback skipped")
	// ErrRollbackFailed is wrapped by rollback faults when the relaunch failed.
	ErrRollbackFailed = errors.New("rollback relaunch failed")
)

// Rollback relaunches the last known-good artifact after a failed start.
type Rollback struct {
	monitor          Monitor
	launcher         Launcher
	notifier         Notifier
	blocklist        Blocklist
	blocklistEnabled bool
}

// NewRollback creates the rollback stage.
func NewRollback(deps Dependencies) *Rollback {
	return &Rollback{
		monitor:          deps.Monitor,
		launcher:         deps.Launcher,
		notifier:         deps.Notifier,
		blocklist:        deps.Blocklist,
		blocklistEnabled: deps.BlocklistEnabled,
	}
}

// Name implements Stage.
func (r *Rollback) Name() string {
	return "rollback"
}

// Apply implements Stage. Continue means the known-good artifact runs again.
func (r *Rollback) Apply(ctx context.Context, app *deploy.Application) Outcome {
	if reason := r.skipReason(ctx, app); reason != "" {
		logger.InfoKV(ctx, "Rollback skipped", "reason", reason)

		return Abort(deploy.NewFault(deploy.LaunchFault, r.Name(), app.Current, reason, ErrRollbackSkipped))
	}

	current := app.Current
	logger.InfoKV(ctx, "Rolling back", "version", current.Version)

	result := r.launcher.Launch(ctx, current.File)

	r.notifier.Send(ctx, fmt.Sprintf("Rollback %s %s", result.Status, current.FileName()), result.StartupLog)

	next := app.Clone()
	next.LaunchResult = result.Clone()

	if !result.Status.Succeeded() {
		message := "relaunch status " + result.Status.String()

		return abortWith(next, deploy.NewFault(deploy.LaunchFault, r.Name(), current, message, ErrRollbackFailed))
	}

	next.Latest = next.Current.Clone()

	logger.InfoKV(ctx, "Rolled back", "version", current.Version)

	return Continue(next)
}

// skipReason returns why no rollback can be attempted, or an empty string.
func (r *Rollback) skipReason(ctx context.Context, app *deploy.Application) string {
	switch {
	case !app.HasKnownGood():
		return "no known-good artifact"
	case app.Latest != nil && app.Current.Version == app.Latest.Version:
		return "the failed version is the known-good version"
	case r.blocklistEnabled && r.blocklist.IsBlocked(ctx, app.Current.File):
		return "known-good artifact is blocklisted"
	case r.monitor.Status(ctx) == deploy.HealthUp:
		return "application is UP"
	default:
		return ""
	}
}
