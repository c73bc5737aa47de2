package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/systemstart/receiptflow/pkg/steps"
)

// Runner executes one cycle of the pipeline, step by step.
type Runner struct {
	Pipeline steps.Pipeline
	Executor *steps.Executor
	Reporter Reporter
	Journal  Journal
	Now      func() time.Time
}

// NewRunner validates the pipeline and returns a Runner for it.
func NewRunner(p steps.Pipeline, reporter Reporter, journal Journal) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating pipeline: %w", err)
	}
	return &Runner{
		Pipeline: p,
		Executor: steps.NewExecutor(),
		Reporter: reporter,
		Journal:  journal,
	}, nil
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) reporter() Reporter {
	if r.Reporter == nil {
		return nopReporter{}
	}
	return r.Reporter
}

// Run executes the pipeline steps in order against pc and returns the cycle
// result. It stops at the first failed cycle-critical step and at any Fatal
// failure. Cancellation is honoured between steps.
func (r *Runner) Run(ctx context.Context, pc *steps.PipelineContext) CycleResult {
	log := pc.Logger
	if log == nil {
		log = slog.Default()
	}
	result := CycleResult{
		Parameter:     pc.Parameter,
		Cycle:         pc.Cycle,
		CorrelationID: pc.CorrelationID,
		Outcomes:      make([]steps.Outcome, 0, len(r.Pipeline)),
		StartedAt:     r.now(),
	}

	executor := r.Executor
	if executor == nil {
		executor = steps.NewExecutor()
	}

	completed := NoStep
	for i, def := range r.Pipeline {
		r.reporter().OnProgress(Progress{Cycle: pc.Cycle, Current: i, Completed: completed})

		var outcome steps.Outcome
		if err := ctx.Err(); err != nil {
			outcome = steps.NotStarted(def, fmt.Errorf("cycle cancelled: %w", err))
		} else {
			outcome = executor.Execute(ctx, def, pc)
		}
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Failed() && (def.Critical || outcome.Kind == steps.Fatal) {
			result.fail(i)
			r.finish(&result)
			r.reporter().OnProgress(Progress{Cycle: pc.Cycle, Current: NoStep, Completed: completed, Err: result.Message})
			log.Error("cycle failed", "step", def.Name, "index", i, "kind", outcome.Kind, "message", outcome.Message)
			return result
		}
		if outcome.Failed() {
			log.Warn("non-critical step failed, continuing", "step", def.Name, "kind", outcome.Kind)
		}

		completed = i
		r.record(result)
	}

	result.Success = !hasFailures(result.Outcomes)
	result.Message = fmt.Sprintf("cycle completed: %d step(s)", len(result.Outcomes))
	if !result.Success {
		result.Message = fmt.Sprintf("cycle completed with non-critical failures: %d step(s)", len(result.Outcomes))
	}
	r.finish(&result)
	r.reporter().OnProgress(Progress{Cycle: pc.Cycle, Current: NoStep, Completed: completed})
	log.Info("cycle finished", "success", result.Success, "steps", len(result.Outcomes))
	return result
}

func (r *Runner) finish(result *CycleResult) {
	result.CompletedAt = r.now()
	r.record(*result)
}

func (r *Runner) record(result CycleResult) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Record(result); err != nil {
		slog.Warn("failed to write cycle journal", "cycle", result.Cycle, "error", err)
	}
}

func hasFailures(outcomes []steps.Outcome) bool {
	for _, o := range outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}
