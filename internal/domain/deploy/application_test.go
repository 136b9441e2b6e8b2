package deploy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestApplicationClone verifies that Clone deep-copies metadata and launch results.
func TestApplicationClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Application)(nil).Clone())

	app := &Application{
		Current:             &Metadata{Version: "1.1.0", File: "/srv/app-1.1.0.jar"},
		Latest:              &Metadata{Version: "1.2.0"},
		LaunchResult:        &LaunchResult{Status: LaunchSuccess, StartupLog: "log"},
		MarkedForValidation: true,
	}

	cloned := app.Clone()

	require.Equal(t, app, cloned)
	require.NotSame(t, app.Current, cloned.Current)
	require.NotSame(t, app.Latest, cloned.Latest)
	require.NotSame(t, app.LaunchResult, cloned.LaunchResult)

	cloned.Latest.File = "/srv/app-1.2.0.jar"
	require.Empty(t, app.Latest.File)
}

// TestApplicationIsSameVersion covers the nil current case and version comparison.
func TestApplicationIsSameVersion(t *testing.T) {
	t.Parallel()

	app := &Application{Latest: &Metadata{Version: "1.0.0"}}
	require.False(t, app.IsSameVersion())
	require.False(t, app.HasKnownGood())

	app.Current = &Metadata{Version: "1.0.0"}
	require.True(t, app.IsSameVersion())
	require.False(t, app.HasKnownGood())

	app.Current.File = "/srv/app-1.0.0.jar"
	require.True(t, app.HasKnownGood())

	app.Latest.Version = "1.1.0"
	require.False(t, app.IsSameVersion())
}

// TestMetadataFileName checks base name extraction.
func TestMetadataFileName(t *testing.T) {
	t.Parallel()

	require.Empty(t, (*Metadata)(nil).FileName())
	require.Equal(t, "app-1.0.0.jar", (&Metadata{File: "/srv/app-1.0.0.jar"}).FileName())
}
