package provisioning

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/imamik/hubspoke/internal/spoke"
)

// Phase defines the interface for one step of the forward workflow.
type Phase interface {
	// Name returns the step this phase implements.
	Name() spoke.StepName

	// Provision executes the step.
	Provision(ctx *Context) error
}

// Tracker persists step transitions. A Tracker error aborts the run.
type Tracker interface {
	StepStarted(ctx context.Context, name spoke.StepName) error
	StepCompleted(ctx context.Context, name spoke.StepName) error
	StepFailed(ctx context.Context, name spoke.StepName, cause error) error
}

// StepError reports the step at which a run stopped.
type StepError struct {
	Step spoke.StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RunPhases executes phases sequentially and stops at the first failure.
// Tracker calls run on a context that outlives ctx's deadline so a failure
// caused by the deadline can still be recorded.
func RunPhases(ctx *Context, phases []Phase, tracker Tracker) error {
	persistCtx := context.WithoutCancel(ctx.Context)
	id := ctx.Spoke.SpokeID

	for i, phase := range phases {
		name := phase.Name()
		start := time.Now()

		if err := tracker.StepStarted(persistCtx, name); err != nil {
			return &StepError{Step: name, Err: err}
		}
		LogStepStart(ctx.Observer, id, string(name))

		err := runPhase(ctx, phase)
		if err != nil {
			recordStep(string(name), "failed", time.Since(start).Seconds())
			LogStepFailed(ctx.Observer, id, string(name), err)
			if terr := tracker.StepFailed(persistCtx, name, err); terr != nil {
				ctx.Log.Error(terr, "failed to record step failure", "step", name)
			}
			return &StepError{Step: name, Err: err}
		}

		if err := tracker.StepCompleted(persistCtx, name); err != nil {
			return &StepError{Step: name, Err: err}
		}
		recordStep(string(name), "completed", time.Since(start).Seconds())
		LogStepComplete(ctx.Observer, id, string(name), time.Since(start))
		ctx.Observer.Progress(string(name), i+1, len(phases))
	}
	return nil
}

// runPhase runs one phase inside its own span.
func runPhase(ctx *Context, phase Phase) error {
	spanCtx, span := StartSpan(ctx.Context, "step "+string(phase.Name()), ctx.Spoke.SpokeID,
		attribute.String("step", string(phase.Name())))

	stepCtx := *ctx
	stepCtx.Context = spanCtx
	err := phase.Provision(&stepCtx)
	EndSpan(span, err)
	return err
}
