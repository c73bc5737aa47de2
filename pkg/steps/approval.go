package steps

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/wait"
)

type approvalStep struct {
	deps Deps
}

func newApprovalStep(deps Deps) Definition {
	s := &approvalStep{deps: deps}
	return Definition{
		Run:      s.Run,
		Retry:    NoRetry,
		RunOnce:  true,
		Requires: []string{FactFiledKeys, FactDueDate},
		Produces: []string{FactApprovalWindow, FactApprovalTitle},
		Skip: func(*PipelineContext) (bool, string) {
			if !deps.Config.Approval.ApprovalEnabled() {
				return true, "approval disabled in configuration"
			}
			return false, ""
		},
	}
}

// attachRetry covers attaching to an approval window that is already open.
var attachRetry = RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond, Multiplier: 2, MaxBackoff: 2 * time.Second}

// Run opens the groupware window from the ERP, attaches to that specific
// window and submits the approval request. The window is opened and the
// request submitted once; a window left behind by a failure is closed.
func (s *approvalStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	if s.deps.Approvals == nil {
		return nil, Errorf(Fatal, "no approval adapter configured")
	}
	session, err := browserOf(pc)
	if err != nil {
		return nil, err
	}
	cfg := s.deps.Config

	title, metadata, err := renderApproval(cfg.Approval.Title, cfg.Approval.Metadata, newTemplateData(pc, cfg.ERP.DateFormat))
	if err != nil {
		return nil, NewError(DataIntegrity, err)
	}

	window, err := s.openWindow(ctx, session)
	if err != nil {
		return nil, err
	}
	pc.logger().Info("approval window opened", "window", window.ID, "url", window.URL)

	approval, _, err := wait.Retry(ctx, attachRetry.waitPolicy(), func(ctx context.Context, _ int) (collab.ApprovalSession, error) {
		return s.deps.Approvals.OpenApproval(ctx, session, window)
	})
	if err != nil {
		s.abandon(ctx, pc, session, window)
		return nil, fmt.Errorf("attaching to approval window %s: %w", window.ID, err)
	}
	if err := approval.SubmitForApproval(ctx, title, metadata); err != nil {
		s.abandon(ctx, pc, session, window)
		return nil, fmt.Errorf("submitting approval %q: %w", title, err)
	}

	return Payload{
		FactApprovalWindow: window.ID,
		FactApprovalTitle:  title,
	}, nil
}

// abandon closes a window the step opened but could not complete.
func (s *approvalStep) abandon(ctx context.Context, pc *PipelineContext, session collab.BrowserSession, window collab.WindowHandle) {
	if err := session.CloseWindow(context.WithoutCancel(ctx), window.ID); err != nil {
		pc.logger().Warn("failed to close approval window", "window", window.ID, "error", err)
	}
}

// openWindow activates the approval control and returns the window it spawned.
// The window count grows as the workflow runs, so the new window is found by
// comparing against a snapshot rather than by position.
func (s *approvalStep) openWindow(ctx context.Context, session collab.BrowserSession) (collab.WindowHandle, error) {
	before, err := session.OpenedWindows(ctx)
	if err != nil {
		return collab.WindowHandle{}, fmt.Errorf("listing windows: %w", err)
	}
	known := make([]string, 0, len(before))
	for _, w := range before {
		known = append(known, w.ID)
	}

	if _, err := activate(ctx, session, api.ElementApprovalOpen); err != nil {
		return collab.WindowHandle{}, err
	}

	var opened collab.WindowHandle
	timeout := s.deps.Config.Approval.WindowTimeout
	found, err := wait.AwaitCondition(ctx, func(ctx context.Context) bool {
		windows, err := session.OpenedWindows(ctx)
		if err != nil {
			return false
		}
		for i := len(windows) - 1; i >= 0; i-- {
			if !slices.Contains(known, windows[i].ID) {
				opened = windows[i]
				return true
			}
		}
		return false
	}, timeout, s.deps.Config.Browser.PollInterval)
	if err != nil {
		return collab.WindowHandle{}, err
	}
	if !found {
		return collab.WindowHandle{}, fmt.Errorf("approval window did not open within %v: %w", timeout, collab.ErrTimeout)
	}
	return opened, nil
}
