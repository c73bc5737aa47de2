package steps

import (
	"context"
	"fmt"

	"github.com/systemstart/receiptflow/pkg/api"
)

type applyDatesStep struct {
	deps Deps
}

func newApplyDatesStep(deps Deps) Definition {
	s := &applyDatesStep{deps: deps}
	return Definition{
		Run:      s.Run,
		Retry:    DefaultRetryPolicy(),
		Requires: []string{FactTransformedFile, FactLastProcessedDate},
		Produces: []string{FactDueDate},
	}
}

// Run copies the due date the transform macro computed into the ERP.
func (s *applyDatesStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	session, err := browserOf(pc)
	if err != nil {
		return nil, err
	}
	cfg := s.deps.Config
	cell := cfg.Workbook.DueDateCell
	path := pc.String(FactTransformedFile)

	due, err := s.deps.Workbook.ReadCell(path, cell.Row, cell.Column)
	if err != nil {
		return nil, asDataIntegrity(fmt.Errorf("reading due date %s%d: %w", cell.Column, cell.Row, err))
	}

	if err := fill(ctx, session, api.ElementDueDate, due); err != nil {
		return nil, err
	}
	if _, err := activate(ctx, session, api.ElementDatesApply); err != nil {
		return nil, err
	}
	if err := awaitReady(ctx, session, cfg.Browser.ReadyTimeout); err != nil {
		return nil, err
	}

	pc.logger().Info("due date applied", "dueDate", due, "lastProcessedDate", pc.String(FactLastProcessedDate))
	return Payload{FactDueDate: due}, nil
}
