package deploy

import "path/filepath"

// Metadata describes one artifact version of the managed application.
type Metadata struct {
	// Version is the artifact version identifier, e.g. "2.3.1".
	Version string
	// File is the absolute path of the locally resolved jar, empty until resolved.
	File string
	// Checksum is the optional checksum recorded for this version.
	Checksum string
}

// Clone returns a copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}

	cloned := *m

	return &cloned
}

// FileName returns the base name of the resolved file.
func (m *Metadata) FileName() string {
	if m == nil || m.File == "" {
		return ""
	}

	return filepath.Base(m.File)
}

// LaunchResult is the outcome of one launch attempt.
type LaunchResult struct {
	// Status is the final classification of the launch.
	Status LaunchStatus
	// StartupLog is the captured startup transcript.
	StartupLog string
	// JarPath is the file that was launched.
	JarPath string
}

// Clone returns a copy of the launch result.
func (r *LaunchResult) Clone() *LaunchResult {
	if r == nil {
		return nil
	}

	cloned := *r

	return &cloned
}

// Application is the state pushed through one deployment cycle.
type Application struct {
	// Current is the last known-good artifact. Nil until a launch ever succeeded.
	Current *Metadata
	// Latest is the upgrade candidate.
	Latest *Metadata
	// LaunchResult is the result of the last launch performed in this cycle.
	LaunchResult *LaunchResult
	// MarkedForValidation is set when the candidate was downloaded during this cycle.
	MarkedForValidation bool
}

// IsSameVersion reports whether current and latest refer to the same version.
func (a *Application) IsSameVersion() bool {
	if a == nil || a.Current == nil || a.Latest == nil {
		return false
	}

	return a.Current.Version == a.Latest.Version
}

// HasKnownGood reports whether a previously launched artifact is available on disk.
func (a *Application) HasKnownGood() bool {
	return a != nil && a.Current != nil && a.Current.File != ""
}

// Clone returns a deep copy of the application state.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}

	return &Application{
		Current:             a.Current.Clone(),
		Latest:              a.Latest.Clone(),
		LaunchResult:        a.LaunchResult.Clone(),
		MarkedForValidation: a.MarkedForValidation,
	}
}
