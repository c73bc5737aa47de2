package steps

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
)

// Deps are the collaborators the built-in steps share across cycles. The
// browser session is per cycle and travels in the PipelineContext.
type Deps struct {
	Config    *api.Config
	Workbook  collab.Workbook
	Approvals collab.ApprovalOpener
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// NewStep creates the named built-in step with its default retry policy and
// any configured override applied.
func NewStep(name string, deps Deps) (Definition, error) {
	var def Definition
	switch name {
	case api.StepAuthenticate:
		def = newAuthenticateStep(deps)
	case api.StepLocateRecords:
		def = newLocateStep(deps)
	case api.StepExportDataset:
		def = newExportStep(deps)
	case api.StepTransform:
		def = newTransformStep(deps)
	case api.StepFileEntries:
		def = newFileEntriesStep(deps)
	case api.StepApplyDates:
		def = newApplyDatesStep(deps)
	case api.StepSubmitApproval:
		def = newApprovalStep(deps)
	default:
		return Definition{}, fmt.Errorf("unknown step: %s", name)
	}

	def.Name = name
	def.Critical = true
	if override, ok := deps.Config.Steps[name]; ok {
		def.Retry = def.Retry.Override(override)
	}
	if def.RunOnce && def.Retry.MaxAttempts > 1 {
		slog.Warn("ignoring retry override for single-attempt step", "step", name, "maxAttempts", def.Retry.MaxAttempts)
		def.Retry.MaxAttempts = 1
	}
	return def, nil
}

// NewPipeline builds the seven-step receipt pipeline in execution order.
func NewPipeline(deps Deps) (Pipeline, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Workbook == nil {
		return nil, fmt.Errorf("workbook is required")
	}

	p := make(Pipeline, 0, len(api.StepNames))
	for i, name := range api.StepNames {
		def, err := NewStep(name, deps)
		if err != nil {
			return nil, err
		}
		def.Ordinal = i + 1
		p = append(p, def)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	return p, nil
}
