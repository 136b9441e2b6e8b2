package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/service/supervisor"
	"github.com/oshokin/deploykeeper/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel overrides the log level from the configuration file.
	logLevel string

	// rootCmd represents the base command of the supervisor.
	rootCmd = &cobra.Command{
		Use:   "deploykeeper",
		Short: "Keep a Spring Boot application on its latest verified release.",
		Long: `Self-deployment supervisor for a single Java application.

Each cycle asks the Maven repository for the newest release, downloads the jar,
verifies its SHA-1 and MD5 checksums and its OpenPGP signature, launches it and
watches the startup log and the actuator health endpoint. A release that fails
to start is blocklisted and the last known-good jar is started again.`,
		SilenceUsage: true,
	}

	// runCmd runs one deployment cycle.
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a single deployment cycle.",
		Long: `Run one deployment cycle and exit.

Exits with a non-zero status when the cycle surfaced a fault, including a
failed launch that was rolled back to the known-good version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return supervisor.Run(ctx, options(cmd))
		},
	}

	// daemonCmd runs cycles on a schedule.
	daemonCmd = &cobra.Command{
		Use:   "daemon",
		Short: "Run deployment cycles on the configured schedule.",
		Long: `Run a cycle at start and then on every tick of the cron schedule from the
configuration file until terminated. The managed application keeps running
after the daemon stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return supervisor.RunDaemon(ctx, options(cmd))
		},
	}

	// statusCmd prints the supervisor state.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print health, versions and blocklisted releases.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return supervisor.Status(cmd.Context(), options(cmd))
		},
	}

	// unblockCmd lifts a blocklist entry.
	unblockCmd = &cobra.Command{
		Use:   "unblock <version>",
		Short: "Remove a release from the blocklist.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options(cmd)
			opts.Version = args[0]

			return supervisor.Unblock(cmd.Context(), opts)
		},
	}
)

// Execute runs the deploykeeper CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}

// options collects the persistent flags for a supervisor entry point.
func options(cmd *cobra.Command) *supervisor.Options {
	return &supervisor.Options{
		ConfigPath: configPath,
		LogLevel:   logLevel,
		Output:     cmd.OutOrStdout(),
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup persistent flags shared by every subcommand.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, daemonCmd, statusCmd, unblockCmd)
}
