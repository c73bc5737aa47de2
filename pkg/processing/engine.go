package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/steps"
	"github.com/systemstart/receiptflow/pkg/wait"
)

// Controller runs the pipeline once per batch parameter.
type Controller struct {
	Runner   *Runner
	Sessions collab.SessionFactory

	// DateRange is evaluated once per cycle.
	DateRange func() (steps.DateRange, error)

	InterCycleDelay    time.Duration
	KeepSessionOnFatal bool

	// Sleep waits between cycles; wait.Sleep when nil.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewController wires a Controller from the run configuration.
func NewController(cfg *api.Config, runner *Runner, sessions collab.SessionFactory) *Controller {
	return &Controller{
		Runner:   runner,
		Sessions: sessions,
		DateRange: func() (steps.DateRange, error) {
			return ResolveDateRange(time.Now(), cfg.DateRange)
		},
		InterCycleDelay:    cfg.Batch.Delay(),
		KeepSessionOnFatal: cfg.Batch.KeepSessionOnFatal,
	}
}

// RunBatch runs one cycle per parameter, in order. A failure of the first
// cycle aborts the batch, since it usually means the environment is broken;
// later failures are recorded and the batch moves on.
func (c *Controller) RunBatch(ctx context.Context, params []string, creds collab.Credentials) BatchResult {
	results := make([]CycleResult, 0, len(params))
	var abort string

	for i, p := range params {
		if i > 0 {
			if err := c.sleep(ctx, c.InterCycleDelay); err != nil {
				abort = fmt.Sprintf("cancelled before cycle %d: %v", i, err)
				break
			}
		}

		slog.Info("processing cycle", "cycle", i, "parameter", p, "of", len(params))
		r := c.runCycle(ctx, i, p, creds)
		results = append(results, r)

		if !r.Success && i == 0 {
			slog.Error("first cycle failed, aborting batch", "parameter", p, "message", r.Message)
			abort = "first cycle failed: " + r.Message
			break
		}
		if !r.Success {
			slog.Error("cycle failed, continuing with next parameter", "cycle", i, "parameter", p, "message", r.Message)
		}
		if err := ctx.Err(); err != nil {
			if i < len(params)-1 {
				abort = fmt.Sprintf("cancelled after cycle %d: %v", i, err)
			}
			break
		}
	}

	b := newBatchResult(results, len(params), abort)
	slog.Info("batch finished", "success", b.Success, "succeeded", b.SuccessCount, "failed", b.FailCount, "message", b.Message)
	return b
}

// RunSingle runs one cycle without a parameter filter.
func (c *Controller) RunSingle(ctx context.Context, creds collab.Credentials) CycleResult {
	slog.Info("processing single cycle")
	r := c.runCycle(ctx, 0, "", creds)
	if r.Success {
		slog.Info("cycle succeeded", "correlationId", r.CorrelationID)
	} else {
		slog.Error("cycle failed", "correlationId", r.CorrelationID, "message", r.Message)
	}
	return r
}

// runCycle owns the browser session and the pipeline context of one cycle;
// both are gone when it returns.
func (c *Controller) runCycle(ctx context.Context, cycle int, param string, creds collab.Credentials) CycleResult {
	dr, err := c.dateRange()
	if err != nil {
		return c.notStarted(cycle, param, steps.NewError(steps.Fatal, err))
	}

	session, err := c.Sessions(ctx)
	if err != nil {
		return c.notStarted(cycle, param, fmt.Errorf("opening browser session: %w", err))
	}

	pc := steps.NewPipelineContext(cycle, param, creds, dr, session)
	result := c.Runner.Run(ctx, pc)

	if !result.Success && result.FailureKind == steps.Fatal && c.KeepSessionOnFatal {
		slog.Warn("leaving browser session open for inspection", "cycle", cycle, "correlationId", result.CorrelationID)
		return result
	}
	if err := session.Close(); err != nil {
		slog.Warn("failed to close browser session", "cycle", cycle, "error", err)
	}
	return result
}

// notStarted records a cycle whose first step could not begin.
func (c *Controller) notStarted(cycle int, param string, err error) CycleResult {
	now := time.Now()
	first := c.Runner.Pipeline[0]
	r := CycleResult{
		Parameter: param,
		Cycle:     cycle,
		Outcomes:  []steps.Outcome{steps.NotStarted(first, err)},
		StartedAt: now,
	}
	r.fail(0)
	r.CompletedAt = now
	c.Runner.record(r)
	c.Runner.reporter().OnProgress(Progress{Cycle: cycle, Current: NoStep, Completed: NoStep, Err: r.Message})
	slog.Error("cycle could not start", "cycle", cycle, "parameter", param, "error", err)
	return r
}

func (c *Controller) dateRange() (steps.DateRange, error) {
	if c.DateRange == nil {
		return ResolveDateRange(time.Now(), nil)
	}
	return c.DateRange()
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return wait.Sleep(ctx, d)
}
