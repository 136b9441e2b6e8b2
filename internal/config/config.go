package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// Config holds every setting of the supervisor.
type Config struct {
	// Root is the working directory of the managed application and the jar store.
	Root string `yaml:"root"`
	// LogLevel is the minimum level of supervisor logs.
	LogLevel string `yaml:"log_level"`
	// Verbose echoes the startup transcript of the managed application to the log.
	Verbose bool `yaml:"verbose"`
	// MetadataFile is where the durable metadata record is kept.
	MetadataFile string `yaml:"metadata_file"`
	// Schedule is the cron expression used by the daemon command.
	Schedule string `yaml:"schedule"`

	// Repository configures the artifact source.
	Repository Repository `yaml:"repository"`
	// Application configures the managed application.
	Application Application `yaml:"application"`
	// Actuator configures the health/control HTTP client.
	Actuator Actuator `yaml:"actuator"`
	// Launch configures startup detection.
	Launch Launch `yaml:"launch"`
	// Shutdown configures shutdown confirmation polling.
	Shutdown Shutdown `yaml:"shutdown"`
	// Blocklist configures the artifact blocklist.
	Blocklist Blocklist `yaml:"blocklist"`
	// Signature configures OpenPGP verification.
	Signature Signature `yaml:"signature"`
	// Notify configures upgrade and rollback notifications.
	Notify Notify `yaml:"notify"`
}

// Repository describes a Maven-layout artifact repository.
type Repository struct {
	// URL is the repository base, e.g. https://repo1.maven.org/maven2.
	URL string `yaml:"url"`
	// GroupID is the Maven group of the managed application.
	GroupID string `yaml:"group_id"`
	// ArtifactID is the Maven artifact of the managed application.
	ArtifactID string `yaml:"artifact_id"`
	// Timeout bounds each repository request.
	Timeout time.Duration `yaml:"timeout"`
}

// Application describes how the managed application is run and health-checked.
type Application struct {
	// Profile is the configuration profile forced on the managed application.
	Profile string `yaml:"profile"`
	// LatestVersion pins the upgrade candidate; empty means query the repository.
	LatestVersion string `yaml:"latest_version"`
	// Java is the java executable used to launch the jar.
	Java string `yaml:"java"`
	// Env holds extra environment variables passed to the child process.
	Env map[string]string `yaml:"env"`
	// HealthURL is the actuator health endpoint.
	HealthURL string `yaml:"health_url"`
	// ShutdownURL is the actuator shutdown endpoint.
	ShutdownURL string `yaml:"shutdown_url"`
	// InfoURL is the actuator info endpoint.
	InfoURL string `yaml:"info_url"`
}

// Actuator holds HTTP client timeouts for actuator calls.
type Actuator struct {
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// ReadTimeout bounds waiting for response headers.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Launch configures how the startup transcript is classified.
type Launch struct {
	// Timeout is the total time allowed for a terminal marker to appear.
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is the transcript sampling interval.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SuccessMarkers classify the launch as SUCCESS when found in the transcript.
	SuccessMarkers []string `yaml:"success_markers"`
	// FailureMarkers classify the launch as FAILED when found in the transcript.
	FailureMarkers []string `yaml:"failure_markers"`
	// TranscriptLimit caps the captured transcript in bytes.
	TranscriptLimit int `yaml:"transcript_limit"`
	// HealthChecks is the number of health checks made after a SUCCESS transcript.
	HealthChecks int `yaml:"health_checks"`
	// StopBeforeUpgrade shuts a healthy running instance down before a different version is launched.
	StopBeforeUpgrade bool `yaml:"stop_before_upgrade"`
}

// Shutdown configures shutdown confirmation.
type Shutdown struct {
	// Retries is the number of status polls after an acknowledged shutdown.
	Retries int `yaml:"retries"`
	// PollInterval is the wait between status polls.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Blocklist configures the artifact blocklist.
type Blocklist struct {
	// Enabled toggles blocklist writes and the prepare-stage gate.
	Enabled bool `yaml:"enabled"`
	// Duration is how long a blocked artifact stays unusable.
	Duration time.Duration `yaml:"duration"`
}

// Signature configures OpenPGP verification.
type Signature struct {
	// TrustedKeys are paths of armored public key files.
	TrustedKeys []string `yaml:"trusted_keys"`
}

// Notify configures the notifier.
type Notify struct {
	// NtfyURL is the ntfy topic URL; empty means log-only notifications.
	NtfyURL string `yaml:"ntfy_url"`
	// Timeout bounds each notification request.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for supervisor settings.
	DefaultConfigFilename = "deploykeeper.yaml"

	// DefaultMetadataFilename is the default name of the metadata record inside Root.
	DefaultMetadataFilename = "metadata.yaml"

	// DefaultTimeout is the default duration for repository and notification requests.
	DefaultTimeout = 30 * time.Second

	// DefaultJava is the default java executable.
	DefaultJava = "java"

	// DefaultSchedule runs a cycle every five minutes in daemon mode.
	DefaultSchedule = "@every 5m"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600

	defaultActuatorConnectTimeout = 5 * time.Second
	defaultActuatorReadTimeout    = 10 * time.Second
	defaultLaunchTimeout          = 3 * time.Minute
	defaultLaunchPollInterval     = 5 * time.Second
	defaultTranscriptLimit        = 1 << 20
	defaultHealthChecks           = 3
	defaultShutdownRetries        = 12
	defaultShutdownPollInterval   = 5 * time.Second
	defaultBlocklistDuration      = 24 * time.Hour
)

// DefaultSuccessMarkers mark a Spring Boot application that finished starting.
//
//nolint:gochecknoglobals // Read-only defaults.
var DefaultSuccessMarkers = []string{"Started IntegrasjonspunktApplication", "Started Application"}

// DefaultFailureMarkers mark a Spring Boot application that failed to start.
//
//nolint:gochecknoglobals // Read-only defaults.
var DefaultFailureMarkers = []string{"APPLICATION FAILED TO START", "Application run failed"}

// allowedProfiles lists the profiles the managed application understands.
//
//nolint:gochecknoglobals // Read-only lookup table.
var allowedProfiles = []string{"dev", "itest", "staging", "production"}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRootRequired is returned when the working directory is missing.
	errRootRequired = errors.New("root directory must be provided")
	// errRepositoryRequired is returned when the repository coordinates are incomplete.
	errRepositoryRequired = errors.New("repository url, group_id and artifact_id must be provided")
	// errHealthURLRequired is returned when no health endpoint is configured.
	errHealthURLRequired = errors.New("application health_url must be provided")
	// errInvalidProfile is returned for profiles the managed application does not know.
	errInvalidProfile = errors.New("application profile must be one of dev, itest, staging, production")
	// errInvalidDuration is returned for non-positive durations that must be positive.
	errInvalidDuration = errors.New("duration must be positive")
	// errInvalidLogLevel is returned for unknown log levels.
	errInvalidLogLevel = errors.New("unknown log level")
	// errTrustedKeysRequired is returned when no signing key is trusted.
	errTrustedKeysRequired = errors.New("at least one trusted key must be provided")
	// errNoPublicKey is returned for key files without an OpenPGP key.
	errNoPublicKey = errors.New("no OpenPGP key found")
)

// Load reads configuration from the provided path and validates it.
// Every failure is reported as a deploy.ConfigFault.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, configFault("read settings", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, configFault("unmarshal settings", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields, fills defaults and normalizes paths.
//
//nolint:cyclop,funlen // A flat list of checks reads better than helpers here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return configFault("validate settings", errConfigIsNotSet)
	}

	if strings.TrimSpace(cfg.Root) == "" {
		return configFault("root", errRootRequired)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return configFault("root", err)
	}

	cfg.Root = root

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return configFault("log_level", fmt.Errorf("%w: %q", errInvalidLogLevel, cfg.LogLevel))
	}

	if cfg.MetadataFile == "" {
		cfg.MetadataFile = filepath.Join(cfg.Root, DefaultMetadataFilename)
	}

	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}

	if _, err = cron.ParseStandard(cfg.Schedule); err != nil {
		return configFault("schedule", err)
	}

	if err = validateRepository(&cfg.Repository); err != nil {
		return err
	}

	if err = validateApplication(&cfg.Application); err != nil {
		return err
	}

	setDefaultDuration(&cfg.Actuator.ConnectTimeout, defaultActuatorConnectTimeout)
	setDefaultDuration(&cfg.Actuator.ReadTimeout, defaultActuatorReadTimeout)
	setDefaultDuration(&cfg.Launch.Timeout, defaultLaunchTimeout)
	setDefaultDuration(&cfg.Launch.PollInterval, defaultLaunchPollInterval)
	setDefaultDuration(&cfg.Shutdown.PollInterval, defaultShutdownPollInterval)
	setDefaultDuration(&cfg.Notify.Timeout, DefaultTimeout)

	if len(cfg.Launch.SuccessMarkers) == 0 {
		cfg.Launch.SuccessMarkers = slices.Clone(DefaultSuccessMarkers)
	}

	if len(cfg.Launch.FailureMarkers) == 0 {
		cfg.Launch.FailureMarkers = slices.Clone(DefaultFailureMarkers)
	}

	if cfg.Launch.TranscriptLimit <= 0 {
		cfg.Launch.TranscriptLimit = defaultTranscriptLimit
	}

	if cfg.Launch.HealthChecks <= 0 {
		cfg.Launch.HealthChecks = defaultHealthChecks
	}

	if cfg.Shutdown.Retries <= 0 {
		cfg.Shutdown.Retries = defaultShutdownRetries
	}

	switch {
	case cfg.Blocklist.Duration == 0:
		cfg.Blocklist.Duration = defaultBlocklistDuration
	case cfg.Blocklist.Duration < 0:
		return configFault("blocklist.duration", errInvalidDuration)
	}

	if err = validateTrustedKeys(cfg.Root, cfg.Signature.TrustedKeys); err != nil {
		return err
	}

	if cfg.Notify.NtfyURL != "" {
		if _, err = url.ParseRequestURI(cfg.Notify.NtfyURL); err != nil {
			return configFault("notify.ntfy_url", err)
		}
	}

	return nil
}

func validateRepository(repo *Repository) error {
	if repo.URL == "" || repo.GroupID == "" || repo.ArtifactID == "" {
		return configFault("repository", errRepositoryRequired)
	}

	if _, err := url.ParseRequestURI(repo.URL); err != nil {
		return configFault("repository.url", err)
	}

	setDefaultDuration(&repo.Timeout, DefaultTimeout)

	return nil
}

func validateApplication(app *Application) error {
	if !slices.Contains(allowedProfiles, app.Profile) {
		return configFault("application.profile", fmt.Errorf("%w: %q", errInvalidProfile, app.Profile))
	}

	if app.HealthURL == "" {
		return configFault("application.health_url", errHealthURLRequired)
	}

	for name, raw := range map[string]string{
		"application.health_url":   app.HealthURL,
		"application.shutdown_url": app.ShutdownURL,
		"application.info_url":     app.InfoURL,
	} {
		if raw == "" {
			continue
		}

		if _, err := url.ParseRequestURI(raw); err != nil {
			return configFault(name, err)
		}
	}

	if app.Java == "" {
		app.Java = DefaultJava
	}

	return nil
}

// validateTrustedKeys resolves key paths against root and requires each one
// to hold an armored OpenPGP key. Without a usable key every release would
// fail verification and be blocklisted.
func validateTrustedKeys(root string, keys []string) error {
	if len(keys) == 0 {
		return configFault("signature.trusted_keys", errTrustedKeysRequired)
	}

	for i, key := range keys {
		if !filepath.IsAbs(key) {
			keys[i] = filepath.Join(root, key)
		}

		if err := readTrustedKey(keys[i]); err != nil {
			return configFault("signature.trusted_keys", err)
		}
	}

	return nil
}

func readTrustedKey(path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open trusted key: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	entities, err := openpgp.ReadArmoredKeyRing(file)
	if err != nil {
		return fmt.Errorf("read trusted key %s: %w", filepath.Base(path), err)
	}

	if len(entities) == 0 {
		return fmt.Errorf("%s: %w", filepath.Base(path), errNoPublicKey)
	}

	return nil
}

// setDefaultDuration replaces non-positive durations with def.
func setDefaultDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func configFault(key string, err error) *deploy.Fault {
	return &deploy.Fault{
		Kind:    deploy.ConfigFault,
		Stage:   "config",
		Message: key,
		Err:     err,
	}
}
