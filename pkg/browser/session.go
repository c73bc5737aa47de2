// Package browser drives the ERP and groupware web UIs through the Chrome
// DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/wait"
)

// Session is a collab.BrowserSession backed by one Chrome tab.
type Session struct {
	cfg api.BrowserConfig

	// ctx is the chromedp tab context; every action derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	nodes map[string]cdp.NodeID
}

var _ collab.BrowserSession = (*Session)(nil)

// NewSessionFactory opens a fresh browser for every cycle. Downloads land in
// the configured workbook download directory.
func NewSessionFactory(cfg *api.Config) collab.SessionFactory {
	return func(ctx context.Context) (collab.BrowserSession, error) {
		return Open(ctx, cfg.Browser, cfg.Workbook.DownloadDir)
	}
}

// Open starts a browser and returns a session on its first tab. The browser
// outlives ctx; it is stopped by Close.
func Open(ctx context.Context, cfg api.BrowserConfig, downloadDir string) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.HeadlessEnabled()),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logf(slog.LevelDebug)),
		chromedp.WithErrorf(logf(slog.LevelWarn)),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	s := &Session{
		cfg:    cfg,
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
			return nil, fmt.Errorf("starting browser: %w", ctxErr)
		}
		return nil, fmt.Errorf("starting browser: %w", errors.Join(collab.ErrUnavailable, err))
	}

	if downloadDir != "" {
		dir, err := filepath.Abs(downloadDir)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("resolving download directory: %w", err)
		}
		behavior := cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir).
			WithEventsEnabled(true)
		if err := s.run(ctx, behavior); err != nil {
			cancel()
			return nil, fmt.Errorf("setting download directory: %w", err)
		}
	}

	slog.Debug("browser session started", "headless", cfg.HeadlessEnabled(), "downloadDir", downloadDir)
	return s, nil
}

func logf(level slog.Level) func(string, ...any) {
	return func(format string, args ...any) {
		slog.Log(context.Background(), level, fmt.Sprintf(format, args...), "component", "chromedp")
	}
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return api.DefaultActionTimeout
}

func (s *Session) pollInterval() time.Duration {
	if s.cfg.PollInterval > 0 {
		return s.cfg.PollInterval
	}
	return api.DefaultPollInterval
}

// run executes actions on the tab, bounded by the action timeout and by the
// caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.actionTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return translate(err)
}

// translate maps browser failures onto the collab sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", collab.ErrTimeout, err)
	case strings.Contains(err.Error(), "net::ERR_"):
		return fmt.Errorf("%w: %w", collab.ErrUnavailable, err)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, address string) error {
	slog.Debug("navigating", "url", address)
	if err := s.run(ctx, chromedp.Navigate(address)); err != nil {
		return fmt.Errorf("navigating to %s: %w", address, err)
	}
	s.forgetNodes()
	return nil
}

// Authenticate fills the login form on the current page and submits it.
func (s *Session) Authenticate(ctx context.Context, creds collab.Credentials) error {
	for _, field := range []struct {
		ref, value string
	}{
		{api.ElementLoginIdentity, creds.Identity},
		{api.ElementLoginSecret, creds.Secret},
	} {
		h, err := s.FindAndActivate(ctx, field.ref)
		if err != nil {
			return err
		}
		if err := s.TypeInto(ctx, h, field.value); err != nil {
			return fmt.Errorf("filling %s: %w", field.ref, err)
		}
	}
	if _, err := s.FindAndActivate(ctx, api.ElementLoginSubmit); err != nil {
		return err
	}
	slog.Debug("login submitted", "credentials", creds)
	return nil
}

// find returns the first node matched by the selectors configured for ref,
// trying them in order, together with the selector that matched.
func (s *Session) find(ctx context.Context, ref string) (*cdp.Node, string, error) {
	raws := s.cfg.Elements[ref]
	if len(raws) == 0 {
		return nil, "", fmt.Errorf("no selectors configured for %s: %w", ref, collab.ErrNotFound)
	}

	for _, raw := range raws {
		sel := parseSelector(raw)
		var nodes []*cdp.Node
		if err := s.run(ctx, chromedp.Nodes(sel.query, &nodes, sel.with(chromedp.AtLeast(0))...)); err != nil {
			if ctx.Err() != nil {
				return nil, "", err
			}
			slog.Debug("selector failed", "ref", ref, "selector", raw, "error", err)
			continue
		}
		if len(nodes) > 0 {
			return nodes[0], raw, nil
		}
	}

	return nil, "", fmt.Errorf("%s: none of %d selector(s) matched: %w", ref, len(raws), collab.ErrNotFound)
}

// FindAndActivate clicks the first element matched by the selectors
// configured for ref.
func (s *Session) FindAndActivate(ctx context.Context, ref string) (collab.Handle, error) {
	node, raw, err := s.find(ctx, ref)
	if err != nil {
		return collab.Handle{}, err
	}
	if err := s.run(ctx, chromedp.ScrollIntoView([]cdp.NodeID{node.NodeID}, chromedp.ByNodeID), chromedp.MouseClickNode(node)); err != nil {
		return collab.Handle{}, fmt.Errorf("clicking %s (%s): %w", ref, raw, err)
	}

	s.mu.Lock()
	s.nodes[ref] = node.NodeID
	s.mu.Unlock()
	return collab.Handle{Ref: ref, Selector: raw}, nil
}

// Exists reports whether any selector configured for ref matches. Nothing is
// clicked.
func (s *Session) Exists(ctx context.Context, ref string) (bool, error) {
	_, _, err := s.find(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, collab.ErrNotFound) && len(s.cfg.Elements[ref]) > 0:
		return false, nil
	}
	return false, err
}

// TypeInto replaces the value of the element behind h.
func (s *Session) TypeInto(ctx context.Context, h collab.Handle, text string) error {
	s.mu.Lock()
	id, ok := s.nodes[h.Ref]
	s.mu.Unlock()

	var actions []chromedp.Action
	if ok {
		ids := []cdp.NodeID{id}
		actions = []chromedp.Action{
			chromedp.Clear(ids, chromedp.ByNodeID),
			chromedp.SendKeys(ids, text, chromedp.ByNodeID),
		}
	} else {
		sel := parseSelector(h.Selector)
		actions = []chromedp.Action{
			chromedp.Clear(sel.query, sel.opts...),
			chromedp.SendKeys(sel.query, text, sel.opts...),
		}
	}
	return s.run(ctx, actions...)
}

// WaitReady polls document.readyState until the page has loaded.
func (s *Session) WaitReady(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = api.DefaultReadyTimeout
	}
	ok, err := wait.AwaitCondition(ctx, func(ctx context.Context) bool {
		var state string
		if err := s.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return false
		}
		return state == "complete"
	}, timeout, s.pollInterval())
	return ok && err == nil
}

// OpenedWindows lists the page targets of the browser.
func (s *Session) OpenedWindows(ctx context.Context) ([]collab.WindowHandle, error) {
	tctx, cancel := context.WithTimeout(s.ctx, s.actionTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	targets, err := chromedp.Targets(tctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("listing windows: %w", translate(err))
	}

	windows := make([]collab.WindowHandle, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		windows = append(windows, collab.WindowHandle{ID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	return windows, nil
}

// CloseWindow closes the page target id.
func (s *Session) CloseWindow(ctx context.Context, id string) error {
	closeTarget := chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return cdp.Execute(cdp.WithExecutor(ctx, c.Browser), target.CommandCloseTarget, target.CloseTarget(target.ID(id)), nil)
	})
	if err := s.run(ctx, closeTarget); err != nil {
		return fmt.Errorf("closing window %s: %w", id, err)
	}
	return nil
}

func (s *Session) forgetNodes() {
	s.mu.Lock()
	clear(s.nodes)
	s.mu.Unlock()
}

// Close stops the browser. It is safe to call more than once.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}
