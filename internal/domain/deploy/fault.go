package deploy

import (
	"errors"
	"fmt"
	"strings"
)

// FaultKind enumerates the error taxonomy of a deployment cycle.
type FaultKind int

const (
	// TransportFault is a download, checksum or signature fetch failure.
	TransportFault FaultKind = iota + 1
	// VerificationFault is a checksum or signature mismatch, or a blocklisted candidate.
	VerificationFault
	// LaunchFault is a launch that failed or did not pass the health cross-check.
	LaunchFault
	// ConfigFault is a missing or invalid required configuration value.
	ConfigFault
)

var (
	// ErrTransport matches every TransportFault with errors.Is.
	ErrTransport = errors.New("transport fault")
	// ErrVerification matches every VerificationFault with errors.Is.
	ErrVerification = errors.New("verification fault")
	// ErrLaunch matches every LaunchFault with errors.Is.
	ErrLaunch = errors.New("launch fault")
	// ErrConfig matches every ConfigFault with errors.Is.
	ErrConfig = errors.New("config fault")
)

// String implements fmt.Stringer.
func (k FaultKind) String() string {
	switch k {
	case TransportFault:
		return "transport"
	case VerificationFault:
		return "verification"
	case LaunchFault:
		return "launch"
	case ConfigFault:
		return "config"
	default:
		return "unknown"
	}
}

func (k FaultKind) sentinel() error {
	switch k {
	case TransportFault:
		return ErrTransport
	case VerificationFault:
		return ErrVerification
	case LaunchFault:
		return ErrLaunch
	case ConfigFault:
		return ErrConfig
	default:
		return nil
	}
}

// Fault is an error surfaced by a pipeline stage with enough context to
// diagnose it without replaying the cycle.
type Fault struct {
	// Kind classifies the fault.
	Kind FaultKind
	// Stage is the pipeline stage that produced the fault.
	Stage string
	// Version is the artifact version being processed.
	Version string
	// Artifact is the local file the fault relates to, if any.
	Artifact string
	// Message is a short human-readable description.
	Message string
	// RolledBack is set on launch faults after the known-good artifact was relaunched.
	RolledBack bool
	// Err is the underlying cause, if any.
	Err error
}

// NewFault builds a Fault.
func NewFault(kind FaultKind, stage string, app *Metadata, message string, cause error) *Fault {
	fault := &Fault{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Err:     cause,
	}

	if app != nil {
		fault.Version = app.Version
		fault.Artifact = app.File
	}

	return fault
}

// Error implements error.
func (f *Fault) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s fault", f.Stage, f.Kind)

	if f.Version != "" {
		fmt.Fprintf(&b, " (version %s", f.Version)

		if f.Artifact != "" {
			fmt.Fprintf(&b, ", artifact %s", f.Artifact)
		}

		b.WriteString(")")
	}

	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}

	if f.RolledBack {
		b.WriteString(" [rolled back]")
	}

	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}

	return b.String()
}

// Unwrap exposes the kind sentinel and the underlying cause to errors.Is/As.
func (f *Fault) Unwrap() []error {
	errs := make([]error, 0, 2)

	if sentinel := f.Kind.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}

	if f.Err != nil {
		errs = append(errs, f.Err)
	}

	return errs
}

// AsFault extracts a *Fault from err.
func AsFault(err error) (*Fault, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault, true
	}

	return nil, false
}
