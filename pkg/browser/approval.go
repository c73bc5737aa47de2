package browser

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
)

// Approver attaches to the groupware window the ERP opened.
type Approver struct {
	cfg api.BrowserConfig
}

var _ collab.ApprovalOpener = (*Approver)(nil)

// NewApprover returns an opener that locates approval form fields with the
// selectors of cfg.
func NewApprover(cfg api.BrowserConfig) *Approver {
	return &Approver{cfg: cfg}
}

// OpenApproval attaches to window inside session's browser. The returned
// session lives until session is closed.
func (a *Approver) OpenApproval(ctx context.Context, session collab.BrowserSession, window collab.WindowHandle) (collab.ApprovalSession, error) {
	parent, ok := session.(*Session)
	if !ok {
		return nil, fmt.Errorf("approval needs a chrome session, got %T", session)
	}

	tabCtx, cancel := chromedp.NewContext(parent.ctx, chromedp.WithTargetID(target.ID(window.ID)))
	child := &Session{
		cfg:    a.cfg,
		ctx:    tabCtx,
		cancel: cancel,
		nodes:  make(map[string]cdp.NodeID),
	}

	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("attaching to window %s: %w", window.ID, translate(err))
	}

	slog.Debug("attached to approval window", "window", window.ID, "url", window.URL)
	return &approvalSession{session: child}, nil
}

type approvalSession struct {
	session *Session
}

// SubmitForApproval fills the approval form and submits it. Metadata keys
// are filled in sorted order.
func (a *approvalSession) SubmitForApproval(ctx context.Context, title string, metadata map[string]string) error {
	s := a.session
	if !s.WaitReady(ctx, s.cfg.ReadyTimeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("approval window not ready: %w", collab.ErrTimeout)
	}

	if err := a.fill(ctx, api.ElementApprovalTitle, title); err != nil {
		return err
	}
	for _, key := range slices.Sorted(maps.Keys(metadata)) {
		if err := a.fill(ctx, api.ElementApprovalFieldPrefix+key, metadata[key]); err != nil {
			return err
		}
	}

	if _, err := s.FindAndActivate(ctx, api.ElementApprovalSubmit); err != nil {
		return fmt.Errorf("submitting approval: %w", err)
	}
	slog.Info("approval submitted", "title", title)
	return nil
}

func (a *approvalSession) fill(ctx context.Context, ref, value string) error {
	h, err := a.session.FindAndActivate(ctx, ref)
	if err != nil {
		return err
	}
	if err := a.session.TypeInto(ctx, h, value); err != nil {
		return fmt.Errorf("filling %s: %w", ref, err)
	}
	return nil
}
