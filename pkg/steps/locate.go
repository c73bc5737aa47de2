package steps

import (
	"context"
	"fmt"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/wait"
)

type locateStep struct {
	deps Deps
}

func newLocateStep(deps Deps) Definition {
	s := &locateStep{deps: deps}
	return Definition{
		Run:      s.Run,
		Retry:    DefaultRetryPolicy(),
		Requires: []string{FactAuthenticatedAt},
		Produces: []string{FactRecordsLocated},
	}
}

// Run opens the purchase receipt list, filters it by date range and the cycle
// parameter, and waits for the result grid.
func (s *locateStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	session, err := browserOf(pc)
	if err != nil {
		return nil, err
	}
	cfg := s.deps.Config

	if err := session.Navigate(ctx, pageURL(cfg.ERP.BaseURL, cfg.ERP.ReceiptsPath)); err != nil {
		return nil, fmt.Errorf("opening receipts page: %w", err)
	}
	if err := awaitReady(ctx, session, cfg.Browser.ReadyTimeout); err != nil {
		return nil, err
	}

	layout := cfg.ERP.DateFormat
	if err := fill(ctx, session, api.ElementFilterFrom, pc.DateRange.From.Format(layout)); err != nil {
		return nil, err
	}
	if err := fill(ctx, session, api.ElementFilterTo, pc.DateRange.To.Format(layout)); err != nil {
		return nil, err
	}
	if pc.Parameter != "" {
		if err := fill(ctx, session, api.ElementFilterKey, pc.Parameter); err != nil {
			return nil, err
		}
	}
	if _, err := activate(ctx, session, api.ElementFilterSearch); err != nil {
		return nil, err
	}

	found, err := wait.AwaitCondition(ctx, func(ctx context.Context) bool {
		ok, err := session.Exists(ctx, api.ElementResultsTable)
		return err == nil && ok
	}, cfg.Browser.ReadyTimeout, cfg.Browser.PollInterval)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("result grid did not appear within %v: %w", cfg.Browser.ReadyTimeout, collab.ErrNotFound)
	}

	return Payload{FactRecordsLocated: true}, nil
}
