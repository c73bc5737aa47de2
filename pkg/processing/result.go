package processing

import (
	"fmt"
	"time"

	"github.com/systemstart/receiptflow/pkg/steps"
)

// CycleResult is the record of one pipeline run for one parameter. It is
// built step by step so that partial results exist while the cycle runs.
type CycleResult struct {
	Parameter     string          `yaml:"parameter"`
	Cycle         int             `yaml:"cycle"`
	CorrelationID string          `yaml:"correlationId"`
	Success       bool            `yaml:"success"`
	Message       string          `yaml:"message"`
	Outcomes      []steps.Outcome `yaml:"outcomes"`
	FailedStep    *int            `yaml:"failedStep,omitempty"`
	FailureKind   steps.Kind      `yaml:"failureKind,omitempty"`
	StartedAt     time.Time       `yaml:"startedAt"`
	CompletedAt   time.Time       `yaml:"completedAt,omitempty"`
}

// FailedOutcome returns the outcome the cycle failed at.
func (r CycleResult) FailedOutcome() (steps.Outcome, bool) {
	if r.FailedStep == nil || *r.FailedStep >= len(r.Outcomes) {
		return steps.Outcome{}, false
	}
	return r.Outcomes[*r.FailedStep], true
}

func (r *CycleResult) fail(index int) {
	o := r.Outcomes[index]
	r.Success = false
	r.FailedStep = &index
	r.FailureKind = o.Kind
	r.Message = fmt.Sprintf("step %d (%s) failed [%s] after %d attempt(s): %s", index, o.Step, o.Kind, o.Attempts, o.Message)
}

// BatchResult aggregates the cycles of one batch run.
type BatchResult struct {
	Cycles       []CycleResult `yaml:"cycles"`
	Planned      int           `yaml:"planned"`
	SuccessCount int           `yaml:"successCount"`
	FailCount    int           `yaml:"failCount"`
	Success      bool          `yaml:"success"`
	Aborted      bool          `yaml:"aborted"`
	Message      string        `yaml:"message"`
}

func newBatchResult(cycles []CycleResult, planned int, abortReason string) BatchResult {
	b := BatchResult{
		Cycles:  cycles,
		Planned: planned,
		Aborted: abortReason != "",
	}
	for _, c := range cycles {
		if c.Success {
			b.SuccessCount++
		} else {
			b.FailCount++
		}
	}
	b.Success = b.FailCount == 0 && !b.Aborted

	switch {
	case planned == 0:
		b.Message = "no parameters to process"
	case b.Aborted:
		b.Message = fmt.Sprintf("batch aborted after %d of %d cycle(s): %s", len(cycles), planned, abortReason)
	case b.Success:
		b.Message = fmt.Sprintf("all %d cycle(s) succeeded", b.SuccessCount)
	default:
		b.Message = fmt.Sprintf("%d of %d cycle(s) failed", b.FailCount, len(cycles))
	}
	return b
}
