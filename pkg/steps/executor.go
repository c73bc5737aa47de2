package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/systemstart/receiptflow/pkg/wait"
)

// Executor runs single steps under their retry policy and turns every result
// into an Outcome.
type Executor struct{}

// NewExecutor creates an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Execute runs def against pc. It never panics and never returns an error:
// failures are reported in the Outcome. On success the payload is merged into
// pc; on failure pc is left as it was.
func (e *Executor) Execute(ctx context.Context, def Definition, pc *PipelineContext) Outcome {
	log := pc.logger().With("step", def.Name, "ordinal", def.Ordinal)

	if def.Skip != nil {
		if skip, reason := def.Skip(pc); skip {
			log.Info("skipping step", "reason", reason)
			return skipped(def, reason)
		}
	}

	if def.Run == nil {
		return failed(def, Fatal, "step has no operation", 0, 0)
	}
	for _, key := range def.Requires {
		if !pc.Has(key) {
			log.Error("missing required fact", "fact", key)
			return failed(def, Fatal, fmt.Sprintf("required fact %q was not produced", key), 0, 0)
		}
	}

	start := time.Now()
	payload, attempts, err := wait.Retry(ctx, def.Retry.waitPolicy(), func(ctx context.Context, attempt int) (Payload, error) {
		log.Debug("running step", "attempt", attempt)
		p, err := invoke(ctx, def, pc.view())
		if err != nil {
			log.Warn("step attempt failed", "attempt", attempt, "kind", Classify(err), "error", err)
		}
		return p, err
	})
	elapsed := time.Since(start)

	if err != nil {
		kind := Classify(err)
		if ctx.Err() != nil {
			kind = Fatal
		}
		log.Error("step failed", "kind", kind, "attempts", attempts, "error", err)
		return failed(def, kind, err.Error(), attempts, elapsed)
	}

	pc.merge(payload)
	log.Info("step succeeded", "attempts", attempts, "duration", elapsed)
	return succeeded(def, payload, attempts, elapsed)
}

func invoke(ctx context.Context, def Definition, pc *PipelineContext) (payload Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = Errorf(Fatal, "step %q panicked: %v", def.Name, r)
		}
	}()
	return def.Run(ctx, pc)
}
