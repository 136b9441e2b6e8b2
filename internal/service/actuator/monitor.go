package actuator

import (
	"context"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/poll"
)

// Endpoint is the remote surface the Monitor drives.
type Endpoint interface {
	Status(ctx context.Context) deploy.HealthStatus
	RequestShutdown(ctx context.Context) bool
	VersionInfo(ctx context.Context) deploy.VersionInfo
}

// Monitor classifies health and confirms shutdowns. It never force-kills.
type Monitor struct {
	// endpoint is the actuator surface.
	endpoint Endpoint
	// shutdown bounds shutdown confirmation polling.
	shutdown config.Shutdown
}

// NewMonitor creates a Monitor over endpoint.
func NewMonitor(endpoint Endpoint, shutdown config.Shutdown) *Monitor {
	return &Monitor{
		endpoint: endpoint,
		shutdown: shutdown,
	}
}

// Status returns the current health of the managed application.
func (m *Monitor) Status(ctx context.Context) deploy.HealthStatus {
	return m.endpoint.Status(ctx)
}

// VersionInfo returns the version the running application reports.
func (m *Monitor) VersionInfo(ctx context.Context) deploy.VersionInfo {
	return m.endpoint.VersionInfo(ctx)
}

// Shutdown requests a shutdown and reports whether the application stopped
// being UP. An unacknowledged request succeeds only if the application is
// already not UP.
func (m *Monitor) Shutdown(ctx context.Context) bool {
	if !m.endpoint.RequestShutdown(ctx) {
		stopped := m.endpoint.Status(ctx) != deploy.HealthUp
		logger.InfoKV(ctx, "Shutdown was not acknowledged", "stopped", stopped)

		return stopped
	}

	stopped, err := poll.Until(ctx, poll.Options{
		Interval: m.shutdown.PollInterval,
		Attempts: m.shutdown.Retries,
	}, func(ctx context.Context) bool {
		return m.endpoint.Status(ctx) != deploy.HealthUp
	})
	if err != nil {
		logger.WarnKV(ctx, "Shutdown confirmation interrupted", "error", err)

		return false
	}

	if !stopped {
		logger.WarnKV(ctx, "Application is still UP after shutdown request", "retries", m.shutdown.Retries)

		return false
	}

	logger.Info(ctx, "Application shut down")

	return true
}
