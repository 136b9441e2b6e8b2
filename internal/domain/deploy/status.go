package deploy

import (
	"strings"
	"time"
)

// HealthStatus is the state reported by the managed application's actuator.
type HealthStatus int

const (
	// HealthUnknown is reported on transport errors, timeouts or unparseable bodies.
	HealthUnknown HealthStatus = iota
	// HealthUp means the managed application reports itself healthy.
	HealthUp
	// HealthDown means the managed application reports itself unhealthy.
	HealthDown
)

// ParseHealthStatus maps an actuator status string to a HealthStatus.
func ParseHealthStatus(s string) HealthStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP":
		return HealthUp
	case "DOWN", "OUT_OF_SERVICE":
		return HealthDown
	default:
		return HealthUnknown
	}
}

// String implements fmt.Stringer.
func (s HealthStatus) String() string {
	switch s {
	case HealthUp:
		return "UP"
	case HealthDown:
		return "DOWN"
	case HealthUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// LaunchStatus classifies a launch attempt.
type LaunchStatus int

const (
	// LaunchUnknown means no terminal marker was seen before the timeout.
	// Callers treat it exactly like LaunchFailed.
	LaunchUnknown LaunchStatus = iota
	// LaunchSuccess means the application started and the health check agreed.
	LaunchSuccess
	// LaunchFailed means a failure marker was seen, the process could not be
	// spawned, or the health check disagreed with the transcript.
	LaunchFailed
)

// String implements fmt.Stringer.
func (s LaunchStatus) String() string {
	switch s {
	case LaunchSuccess:
		return "SUCCESS"
	case LaunchFailed:
		return "FAILED"
	case LaunchUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// Succeeded reports whether the status is a terminal success.
func (s LaunchStatus) Succeeded() bool {
	return s == LaunchSuccess
}

// VersionInfo is the build information exposed by the managed application.
type VersionInfo struct {
	// Version is the running build version.
	Version string
	// Resolved is false when the info endpoint could not be queried.
	Resolved bool
}

// BlocklistEntry marks an artifact file as unusable until BlockedUntil.
type BlocklistEntry struct {
	// Artifact is the path of the blocked jar.
	Artifact string `yaml:"artifact"`
	// BlockedUntil is the instant the entry expires.
	BlockedUntil time.Time `yaml:"blocked_until"`
	// Reason explains why the artifact was blocked.
	Reason string `yaml:"reason,omitempty"`
}

// Active reports whether the entry still blocks the artifact at now.
func (e *BlocklistEntry) Active(now time.Time) bool {
	return e != nil && now.Before(e.BlockedUntil)
}
