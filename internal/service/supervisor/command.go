package supervisor

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// Options controls how the supervisor is started from the command line.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// LogLevel overrides the global log level when set.
	LogLevel string
	// Version selects the artifact version for administrative commands.
	Version string
	// Output receives the human-readable report of administrative commands.
	Output io.Writer
}

// Run executes a single deployment cycle and returns its fault, if any.
func Run(ctx context.Context, opts *Options) error {
	ctx, supervisor, err := setup(ctx, opts)
	if err != nil {
		return err
	}

	result, err := supervisor.RunCycle(ctx)
	if err != nil {
		return err
	}

	return result.Err()
}

// RunDaemon runs cycles on the configured schedule until ctx is cancelled.
func RunDaemon(ctx context.Context, opts *Options) error {
	ctx, supervisor, err := setup(ctx, opts)
	if err != nil {
		return err
	}

	return supervisor.Daemon(ctx)
}

// Unblock lifts the blocklist entry of opts.Version.
func Unblock(ctx context.Context, opts *Options) error {
	ctx, supervisor, err := setup(ctx, opts)
	if err != nil {
		return err
	}

	entry, err := supervisor.Unblock(ctx, opts.Version)
	if err != nil {
		return err
	}

	if opts.Output != nil {
		_, _ = fmt.Fprintf(opts.Output, "unblocked %s (%s)\n", opts.Version, entry.Artifact)
	}

	return nil
}

// Status prints the supervisor state as YAML.
func Status(ctx context.Context, opts *Options) error {
	ctx, supervisor, err := setup(ctx, opts)
	if err != nil {
		return err
	}

	report, err := supervisor.Status(ctx)
	if err != nil {
		return err
	}

	if opts.Output == nil {
		return nil
	}

	encoder := yaml.NewEncoder(opts.Output)
	encoder.SetIndent(2) //nolint:mnd // Matches the configuration file layout.

	if err = encoder.Encode(report); err != nil {
		return fmt.Errorf("encode status report: %w", err)
	}

	return encoder.Close()
}

// setup loads configuration, applies the log level and wires the supervisor.
// The command-line level wins over the configured one.
func setup(ctx context.Context, opts *Options) (context.Context, *Supervisor, error) {
	ctx = logger.WithName(ctx, "deploykeeper")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return ctx, nil, fmt.Errorf("load configuration: %w", err)
	}

	levelName := cfg.LogLevel
	if opts.LogLevel != "" {
		levelName = opts.LogLevel
	}

	level, ok := logger.ParseLogLevel(levelName)
	if !ok {
		return ctx, nil, fmt.Errorf("%w: %q", errUnknownLogLevel, levelName)
	}

	logger.SetLevel(level)

	supervisor, err := New(cfg)
	if err != nil {
		return ctx, nil, err
	}

	return ctx, supervisor, nil
}
