package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/systemstart/receiptflow/pkg/collab"
)

func browserOf(pc *PipelineContext) (collab.BrowserSession, error) {
	if pc.Session == nil {
		return nil, Errorf(Fatal, "cycle %d has no browser session", pc.Cycle)
	}
	return pc.Session, nil
}

func activate(ctx context.Context, s collab.BrowserSession, ref string) (collab.Handle, error) {
	h, err := s.FindAndActivate(ctx, ref)
	if err != nil {
		return collab.Handle{}, fmt.Errorf("activating %s: %w", ref, err)
	}
	return h, nil
}

func fill(ctx context.Context, s collab.BrowserSession, ref, text string) error {
	h, err := activate(ctx, s, ref)
	if err != nil {
		return err
	}
	if err := s.TypeInto(ctx, h, text); err != nil {
		return fmt.Errorf("typing into %s: %w", ref, err)
	}
	return nil
}

func awaitReady(ctx context.Context, s collab.BrowserSession, timeout time.Duration) error {
	if s.WaitReady(ctx, timeout) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("page not ready after %v: %w", timeout, collab.ErrTimeout)
}

func pageURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
