package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/wait"
)

type exportStep struct {
	deps Deps
}

func newExportStep(deps Deps) Definition {
	s := &exportStep{deps: deps}
	return Definition{
		Run:      s.Run,
		Retry:    DefaultRetryPolicy(),
		Requires: []string{FactRecordsLocated},
		Produces: []string{FactDownloadedFile},
	}
}

// Run triggers the spreadsheet export and waits for a file to land in the
// download directory. Only files written after the click count.
func (s *exportStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	session, err := browserOf(pc)
	if err != nil {
		return nil, err
	}
	wb := s.deps.Config.Workbook

	// Filesystems may store mtimes at whole-second precision.
	since := s.deps.now().Truncate(time.Second)
	if _, err := activate(ctx, session, api.ElementExportButton); err != nil {
		return nil, err
	}

	var path string
	found, err := wait.AwaitCondition(ctx, func(context.Context) bool {
		p, err := s.deps.Workbook.FindLatestDownloadedFile(wb.DownloadDir, since)
		if err != nil {
			return false
		}
		path = p
		return true
	}, wb.DownloadTimeout, s.deps.Config.Browser.PollInterval)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no export in %s within %v: %w", wb.DownloadDir, wb.DownloadTimeout, collab.ErrTimeout)
	}

	pc.logger().Info("export downloaded", "path", path)
	return Payload{FactDownloadedFile: path}, nil
}
