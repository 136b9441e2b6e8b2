package deploy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestParseHealthStatus maps known and unknown status strings.
func TestParseHealthStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]HealthStatus{
		"UP":             HealthUp,
		" up ":           HealthUp,
		"DOWN":           HealthDown,
		"OUT_OF_SERVICE": HealthDown,
		"":               HealthUnknown,
		"RESTARTING":     HealthUnknown,
	}
	for input, want := range cases {
		require.Equal(t, want, ParseHealthStatus(input), input)
	}
}

// TestStatusStrings ensures the names used in notification subjects are stable.
func TestStatusStrings(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SUCCESS", LaunchSuccess.String())
	require.Equal(t, "FAILED", LaunchFailed.String())
	require.Equal(t, "UNKNOWN", LaunchUnknown.String())
	require.Equal(t, "UP", HealthUp.String())
	require.Equal(t, "DOWN", HealthDown.String())
	require.Equal(t, "UNKNOWN", HealthUnknown.String())
	require.False(t, LaunchUnknown.Succeeded())
}

// TestBlocklistEntryActive checks expiry against a fixed instant.
func TestBlocklistEntryActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.False(t, (*BlocklistEntry)(nil).Active(now))
	require.True(t, (&BlocklistEntry{BlockedUntil: now.Add(time.Minute)}).Active(now))
	require.False(t, (&BlocklistEntry{BlockedUntil: now}).Active(now))
}
