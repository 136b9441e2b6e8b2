package launcher

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/poll"
)

// HealthChecker is the out-of-band health signal consulted after startup.
type HealthChecker interface {
	Status(ctx context.Context) deploy.HealthStatus
}

// Launcher starts the managed application jar and classifies its startup.
type Launcher struct {
	// java is the java executable.
	java string
	// root is the working directory of the child.
	root string
	// profile is forced on the child with --spring.profiles.active.
	profile string
	// env holds extra variables appended to the inherited environment.
	env []string
	// launch holds startup detection settings.
	launch config.Launch
	// verbose echoes the transcript to the log.
	verbose bool
	// health is the live health signal.
	health HealthChecker
	// onCancel is called once per cancelled launch; tests use it to count cancellations.
	onCancel func()
}

// New creates a Launcher from the supervisor configuration.
func New(cfg *config.Config, health HealthChecker) *Launcher {
	env := make([]string, 0, len(cfg.Application.Env))
	for _, key := range slices.Sorted(maps.Keys(cfg.Application.Env)) {
		env = append(env, key+"="+cfg.Application.Env[key])
	}

	return &Launcher{
		java:    cfg.Application.Java,
		root:    cfg.Root,
		profile: cfg.Application.Profile,
		env:     env,
		launch:  cfg.Launch,
		verbose: cfg.Verbose,
		health:  health,
	}
}

// Command returns the invocation used for jarPath.
func (l *Launcher) Command(jarPath string) []string {
	return []string{
		l.java,
		"-jar", jarPath,
		"--management.endpoint.shutdown.enabled=true",
		"--app.logger.enableSSL=false",
		"--spring.profiles.active=" + l.profile,
	}
}

// Launch starts jarPath and returns the classified result. A child that
// starts successfully keeps running after Launch returns.
func (l *Launcher) Launch(ctx context.Context, jarPath string) *deploy.LaunchResult {
	ctx = logger.WithKV(ctx, "jar", filepath.Base(jarPath))
	transcript := NewTranscript(l.launch.TranscriptLimit)

	proc, err := l.start(ctx, jarPath, transcript)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to start the application", "error", err)

		return &deploy.LaunchResult{
			Status:     deploy.LaunchFailed,
			StartupLog: err.Error(),
			JarPath:    jarPath,
		}
	}

	logger.InfoKV(ctx, "Application started, waiting for startup markers", "pid", proc.pid(), "timeout", l.launch.Timeout)

	status := l.await(ctx, proc, transcript)
	transcript.StopRecording()

	if status == deploy.LaunchSuccess && !l.healthy(ctx) {
		logger.Warn(ctx, "Startup log reports success but the health check does not report UP")

		status = deploy.LaunchFailed
	}

	if !status.Succeeded() {
		proc.stop(ctx)
	}

	logger.InfoKV(ctx, "Launch classified", "status", status)

	return &deploy.LaunchResult{
		Status:     status,
		StartupLog: transcript.String(),
		JarPath:    jarPath,
	}
}

// start spawns the child and its drain worker.
func (l *Launcher) start(ctx context.Context, jarPath string, transcript *Transcript) (*process, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	// The child outlives the cycle, so it must not inherit the cycle context.
	childCtx, cancel := context.WithCancel(context.Background())

	args := l.Command(jarPath)
	//nolint:gosec // The executable and jar come from the supervisor configuration.
	cmd := exec.CommandContext(childCtx, args[0], args[1:]...)
	cmd.Dir = l.root
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err = cmd.Start(); err != nil {
		cancel()

		_ = reader.Close()
		_ = writer.Close()

		return nil, fmt.Errorf("start %s: %w", filepath.Base(jarPath), err)
	}

	// The child holds its own copy of the write end.
	_ = writer.Close()

	proc := newProcess(cmd, reader, cancel, l.onCancel)

	var echo *zap.SugaredLogger
	if l.verbose {
		echo = logger.Echo(ctx, "app")
	}

	go proc.drain(transcript, echo)
	go proc.reap(ctx)

	return proc, nil
}

// await polls the transcript until a terminal marker appears, the output
// ends or the launch timeout elapses.
func (l *Launcher) await(ctx context.Context, proc *process, transcript *Transcript) deploy.LaunchStatus {
	status := deploy.LaunchUnknown

	_, err := poll.Until(ctx, poll.Options{
		Interval: l.launch.PollInterval,
		Timeout:  l.launch.Timeout,
	}, func(context.Context) bool {
		status = l.classify(transcript)
		if status != deploy.LaunchUnknown {
			return true
		}

		// Nothing more can be recorded once the output is closed.
		if proc.drained() {
			status = l.classify(transcript)

			return true
		}

		return false
	})
	if err != nil {
		logger.WarnKV(ctx, "Startup detection interrupted", "error", err)
	}

	if status == deploy.LaunchUnknown {
		logger.WarnKV(ctx, "No startup marker found", "timeout", l.launch.Timeout)
	}

	return status
}

// classify matches failure markers before success markers.
func (l *Launcher) classify(transcript *Transcript) deploy.LaunchStatus {
	switch {
	case transcript.Contains(l.launch.FailureMarkers):
		return deploy.LaunchFailed
	case transcript.Contains(l.launch.SuccessMarkers):
		return deploy.LaunchSuccess
	default:
		return deploy.LaunchUnknown
	}
}

// healthy checks health up to the configured number of checks.
func (l *Launcher) healthy(ctx context.Context) bool {
	if l.health == nil {
		return true
	}

	attempts := max(l.launch.HealthChecks, 1)

	up, err := poll.Until(ctx, poll.Options{
		Interval: l.launch.PollInterval,
		Attempts: attempts,
	}, func(ctx context.Context) bool {
		return l.health.Status(ctx) == deploy.HealthUp
	})
	if err != nil {
		logger.WarnKV(ctx, "Health check interrupted", "error", err)

		return false
	}

	return up
}
