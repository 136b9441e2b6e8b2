package launcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
)

// staticHealth always reports the same health.
type staticHealth struct {
	status deploy.HealthStatus
	calls  atomic.Int32
}

func (p *staticHealth) Status(context.Context) deploy.HealthStatus {
	p.calls.Add(1)

	return p.status
}

// newLauncher writes script as the java executable and returns a launcher
// counting its cancellations.
//
// Launcher tests do not run in parallel: writing an executable while other
// tests fork can fail with "text file busy".
func newLauncher(t *testing.T, script string, health HealthChecker, timeout time.Duration) (*Launcher, *atomic.Int32) {
	t.Helper()

	root := t.TempDir()
	java := filepath.Join(root, "java")
	require.NoError(t, os.WriteFile(java, []byte("#!/bin/sh\n"+script), 0o755)) //nolint:gosec // Test executable.

	cfg := &config.Config{
		Root: root,
		Application: config.Application{
			Profile: "itest",
			Java:    java,
			Env:     map[string]string{"DEPLOYKEEPER_TEST": "on"},
		},
		Launch: config.Launch{
			Timeout:         timeout,
			PollInterval:    10 * time.Millisecond,
			SuccessMarkers:  config.DefaultSuccessMarkers,
			FailureMarkers:  config.DefaultFailureMarkers,
			TranscriptLimit: 1 << 16,
			HealthChecks:    2,
		},
	}

	cancels := new(atomic.Int32)
	l := New(cfg, health)
	l.onCancel = func() { cancels.Add(1) }

	return l, cancels
}

// TestLaunch_Success classifies a started application and leaves it running.
func TestLaunch_Success(t *testing.T) {
	script := `echo "args: $@"
echo "env: $DEPLOYKEEPER_TEST"
echo "Started Application in 1.2 seconds"
exec sleep 2
`
	health := &staticHealth{status: deploy.HealthUp}
	l, cancels := newLauncher(t, script, health, 10*time.Second)

	result := l.Launch(context.Background(), "/opt/app/integrasjonspunkt-1.2.0.jar")

	require.Equal(t, deploy.LaunchSuccess, result.Status)
	require.Equal(t, "/opt/app/integrasjonspunkt-1.2.0.jar", result.JarPath)
	require.Contains(t, result.StartupLog, "args: -jar /opt/app/integrasjonspunkt-1.2.0.jar "+
		"--management.endpoint.shutdown.enabled=true --app.logger.enableSSL=false --spring.profiles.active=itest")
	require.Contains(t, result.StartupLog, "env: on")
	require.Zero(t, cancels.Load())
	require.Equal(t, int32(1), health.calls.Load())
}

// TestLaunch_FailureMarker cancels the child once when a failure marker shows up.
func TestLaunch_FailureMarker(t *testing.T) {
	script := `echo "***************************"
echo "APPLICATION FAILED TO START"
exec sleep 30
`
	health := &staticHealth{status: deploy.HealthUp}
	l, cancels := newLauncher(t, script, health, 10*time.Second)

	result := l.Launch(context.Background(), "app.jar")

	require.Equal(t, deploy.LaunchFailed, result.Status)
	require.Contains(t, result.StartupLog, "APPLICATION FAILED TO START")
	require.Equal(t, int32(1), cancels.Load())
	require.Zero(t, health.calls.Load())
}

// TestLaunch_Timeout classifies a silent startup as UNKNOWN and cancels it exactly once.
func TestLaunch_Timeout(t *testing.T) {
	script := `echo "Starting"
exec sleep 30
`
	l, cancels := newLauncher(t, script, &staticHealth{status: deploy.HealthUp}, 200*time.Millisecond)

	started := time.Now()
	result := l.Launch(context.Background(), "app.jar")

	require.Equal(t, deploy.LaunchUnknown, result.Status)
	require.False(t, result.Status.Succeeded())
	require.Equal(t, "Starting\n", result.StartupLog)
	require.Equal(t, int32(1), cancels.Load())
	require.Less(t, time.Since(started), 10*time.Second)
}

// TestLaunch_HealthDowngrades lets the health check override a SUCCESS transcript.
func TestLaunch_HealthDowngrades(t *testing.T) {
	script := `echo "Started Application in 0.9 seconds"
exec sleep 30
`
	health := &staticHealth{status: deploy.HealthDown}
	l, cancels := newLauncher(t, script, health, 10*time.Second)

	result := l.Launch(context.Background(), "app.jar")

	require.Equal(t, deploy.LaunchFailed, result.Status)
	require.Equal(t, int32(2), health.calls.Load())
	require.Equal(t, int32(1), cancels.Load())
}

// TestLaunch_ExitWithoutMarker stops waiting once the output is closed.
func TestLaunch_ExitWithoutMarker(t *testing.T) {
	script := `echo "Error: Unable to access jarfile"
exit 1
`
	l, cancels := newLauncher(t, script, &staticHealth{status: deploy.HealthUp}, time.Minute)

	started := time.Now()
	result := l.Launch(context.Background(), "missing.jar")

	require.Equal(t, deploy.LaunchUnknown, result.Status)
	require.Contains(t, result.StartupLog, "Unable to access jarfile")
	require.Equal(t, int32(1), cancels.Load())
	require.Less(t, time.Since(started), 30*time.Second)
}

// TestLaunch_SpawnFailure reports FAILED with the error as transcript.
func TestLaunch_SpawnFailure(t *testing.T) {
	l, cancels := newLauncher(t, "", &staticHealth{status: deploy.HealthUp}, time.Second)
	l.java = filepath.Join(t.TempDir(), "no-such-java")

	result := l.Launch(context.Background(), "app.jar")

	require.Equal(t, deploy.LaunchFailed, result.Status)
	require.Contains(t, result.StartupLog, "no-such-java")
	require.Zero(t, cancels.Load())
}

// TestLaunch_FreshStatePerLaunch ensures a launch never sees output of a previous one.
func TestLaunch_FreshStatePerLaunch(t *testing.T) {
	script := `echo "launching $2"
echo "APPLICATION FAILED TO START"
exec sleep 30
`
	l, cancels := newLauncher(t, script, &staticHealth{status: deploy.HealthUp}, 10*time.Second)

	first := l.Launch(context.Background(), "first.jar")
	second := l.Launch(context.Background(), "second.jar")

	require.Contains(t, first.StartupLog, "launching first.jar")
	require.Contains(t, second.StartupLog, "launching second.jar")
	require.NotContains(t, second.StartupLog, "first.jar")
	require.Equal(t, int32(2), cancels.Load())
}

// TestLaunch_Cancelled treats an interrupted wait as a failed launch.
func TestLaunch_Cancelled(t *testing.T) {
	script := `exec sleep 30
`
	l, cancels := newLauncher(t, script, &staticHealth{status: deploy.HealthUp}, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result := l.Launch(ctx, "app.jar")

	require.False(t, result.Status.Succeeded())
	require.Equal(t, int32(1), cancels.Load())
}
