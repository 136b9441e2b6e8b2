package pipeline

import (
	"context"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// Result is the outcome of one cycle.
type Result struct {
	// App is the final state, also when the cycle failed.
	App *deploy.Application
	// Fault is the surfaced fault, nil when the cycle succeeded.
	Fault *deploy.Fault
	// RollbackFault explains a skipped or failed rollback.
	RollbackFault *deploy.Fault
}

// Err returns the surfaced fault as an error, or nil.
func (r *Result) Err() error {
	if r == nil || r.Fault == nil {
		return nil
	}

	return r.Fault
}

// Pipeline runs stages in order and handles rollback requests.
type Pipeline struct {
	stages   []Stage
	rollback Stage
}

// NewPipeline creates a pipeline of stages with rollback handling RollbackRequested outcomes.
func NewPipeline(rollback Stage, stages ...Stage) *Pipeline {
	return &Pipeline{
		stages:   stages,
		rollback: rollback,
	}
}

// New wires prepare, validate and start with rollback from deps.
func New(deps Dependencies) *Pipeline {
	return NewPipeline(
		NewRollback(deps),
		NewPrepare(deps),
		NewValidate(deps),
		NewStart(deps),
	)
}

// Run pushes app through the stages. The input is never modified.
func (p *Pipeline) Run(ctx context.Context, app *deploy.Application) *Result {
	state := app

	for _, stage := range p.stages {
		stageCtx := logger.WithKV(ctx, "stage", stage.Name())
		logger.Debug(stageCtx, "Stage started")

		out := stage.Apply(stageCtx, state)

		switch out.Kind() {
		case KindContinue:
			if out.App() != nil {
				state = out.App()
			}
		case KindAbort:
			if out.App() != nil {
				state = out.App()
			}

			logger.ErrorKV(stageCtx, "Cycle aborted", "error", out.Fault())

			return &Result{App: state, Fault: out.Fault()}
		case KindRollbackRequested:
			return p.rollBack(ctx, out)
		default:
			fault := deploy.NewFault(deploy.ConfigFault, stage.Name(), nil, "stage returned no outcome", nil)

			return &Result{App: state, Fault: fault}
		}
	}

	return &Result{App: state}
}

// rollBack runs the rollback stage for a RollbackRequested outcome.
func (p *Pipeline) rollBack(ctx context.Context, requested Outcome) *Result {
	result := &Result{
		App:   requested.App(),
		Fault: requested.Fault(),
	}

	if p.rollback == nil {
		return result
	}

	ctx = logger.WithKV(ctx, "stage", p.rollback.Name())
	out := p.rollback.Apply(ctx, result.App)

	switch out.Kind() {
	case KindContinue:
		if out.App() != nil {
			result.App = out.App()
		}

		result.Fault.RolledBack = true

		logger.WarnKV(ctx, "Upgrade failed, known-good version restored", "error", result.Fault)
	case KindAbort, KindRollbackRequested:
		if out.App() != nil {
			result.App = out.App()
		}

		result.RollbackFault = out.Fault()

		logger.ErrorKV(ctx, "Upgrade failed and was not rolled back", "error", result.Fault, "rollback", out.Fault())
	default:
		logger.ErrorKV(ctx, "Upgrade failed, rollback returned no outcome", "error", result.Fault)
	}

	return result
}
