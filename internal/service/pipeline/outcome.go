package pipeline

import (
	"context"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
)

// OutcomeKind enumerates the results of a stage.
type OutcomeKind int

const (
	// KindContinue passes the state to the next stage.
	KindContinue OutcomeKind = iota + 1
	// KindAbort ends the cycle with a fault.
	KindAbort
	// KindRollbackRequested runs the rollback stage, then ends the cycle with a fault.
	KindRollbackRequested
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindAbort:
		return "abort"
	case KindRollbackRequested:
		return "rollback"
	default:
		return "unknown"
	}
}

// Outcome is the closed result of Stage.Apply.
type Outcome struct {
	kind  OutcomeKind
	app   *deploy.Application
	fault *deploy.Fault
}

// Continue hands app to the next stage.
func Continue(app *deploy.Application) Outcome {
	return Outcome{kind: KindContinue, app: app}
}

// Abort ends the cycle with fault, keeping the state the stage received.
func Abort(fault *deploy.Fault) Outcome {
	return Outcome{kind: KindAbort, fault: fault}
}

// RollbackRequested asks for a rollback of app and then surfaces fault.
func RollbackRequested(app *deploy.Application, fault *deploy.Fault) Outcome {
	return Outcome{kind: KindRollbackRequested, app: app, fault: fault}
}

// abortWith ends the cycle with fault and an updated state.
func abortWith(app *deploy.Application, fault *deploy.Fault) Outcome {
	return Outcome{kind: KindAbort, app: app, fault: fault}
}

// Kind returns the variant of the outcome.
func (o Outcome) Kind() OutcomeKind {
	return o.kind
}

// App returns the state carried by the outcome, nil for a plain Abort.
func (o Outcome) App() *deploy.Application {
	return o.app
}

// Fault returns the fault carried by the outcome, nil for Continue.
func (o Outcome) Fault() *deploy.Fault {
	return o.fault
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Apply(ctx context.Context, app *deploy.Application) Outcome
}
