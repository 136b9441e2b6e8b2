package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// cronLogger adapts the context logger to cron.Logger.
type cronLogger struct {
	ctx context.Context //nolint:containedctx // cron.Logger has no context parameter.
}

// Info implements cron.Logger. Scheduler chatter is logged at debug level.
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	logger.DebugKV(l.ctx, msg, keysAndValues...)
}

// Error implements cron.Logger.
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.ErrorKV(l.ctx, msg, append(keysAndValues, "error", err)...)
}

// Daemon runs a cycle at start and then on every tick of the configured
// schedule until ctx is cancelled. A tick that fires while a cycle is still
// running is skipped.
func (s *Supervisor) Daemon(ctx context.Context) error {
	ctx = logger.WithName(ctx, "daemon")
	log := cronLogger{ctx: ctx}

	scheduler := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	job := cron.FuncJob(func() {
		s.runScheduled(ctx)
	})

	id, err := scheduler.AddJob(s.cfg.Schedule, job)
	if err != nil {
		return deploy.NewFault(deploy.ConfigFault, "config", nil, "invalid schedule", err)
	}

	logger.InfoKV(ctx, "Daemon started", "schedule", s.cfg.Schedule)

	scheduler.Entry(id).WrappedJob.Run()
	scheduler.Start()

	<-ctx.Done()

	logger.Info(ctx, "Daemon stopping, waiting for the running cycle")
	<-scheduler.Stop().Done()
	logger.Info(ctx, "Daemon stopped")

	return nil
}

// runScheduled runs one cycle and logs its outcome; errors never stop the daemon.
func (s *Supervisor) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.RunCycle(ctx)

	switch {
	case errors.Is(err, ErrCycleInProgress):
		logger.Info(ctx, "Skipping tick, a cycle is running in another process")
	case err != nil:
		logger.ErrorKV(ctx, "Cycle failed", "error", err)
	case result.Fault != nil:
		logger.WarnKV(ctx, "Cycle ended with a fault", "error", fmt.Sprint(result.Fault))
	}
}
