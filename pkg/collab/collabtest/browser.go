// Package collabtest provides scriptable in-memory collaborators for tests.
package collabtest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/systemstart/receiptflow/pkg/collab"
)

// Browser is a scriptable collab.BrowserSession.
//
// Failures are keyed by operation: "authenticate", "navigate:<target>",
// "activate:<ref>", "exists:<ref>", "type:<ref>", "windows" and
// "closeWindow:<id>". Each call pops the first queued error; a nil entry lets
// that call succeed. A failed Exists reports the element as absent.
type Browser struct {
	mu sync.Mutex

	Failures map[string][]error
	Windows  []collab.WindowHandle
	NotReady bool

	// OnActivate runs after a successful FindAndActivate.
	OnActivate func(b *Browser, ref string)

	Calls  []string
	Typed  map[string][]string
	Closed bool
}

// NewBrowser returns a browser whose every call succeeds.
func NewBrowser() *Browser {
	return &Browser{
		Failures: map[string][]error{},
		Typed:    map[string][]string{},
		Windows:  []collab.WindowHandle{{ID: "main", Title: "ERP"}},
	}
}

// FailWith queues errors for the operation key.
func (b *Browser) FailWith(key string, errs ...error) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Failures[key] = append(b.Failures[key], errs...)
	return b
}

// OpenWindow appends a window as if the page had spawned a popup.
func (b *Browser) OpenWindow(w collab.WindowHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Windows = append(b.Windows, w)
}

// Count returns how many calls were recorded for key.
func (b *Browser) Count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c == key {
			n++
		}
	}
	return n
}

func (b *Browser) record(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, key)
	queue := b.Failures[key]
	if len(queue) == 0 {
		return nil
	}
	b.Failures[key] = queue[1:]
	return queue[0]
}

func (b *Browser) Authenticate(_ context.Context, _ collab.Credentials) error {
	return b.record("authenticate")
}

func (b *Browser) Navigate(_ context.Context, target string) error {
	return b.record("navigate:" + target)
}

func (b *Browser) FindAndActivate(_ context.Context, ref string) (collab.Handle, error) {
	if err := b.record("activate:" + ref); err != nil {
		return collab.Handle{}, err
	}
	if b.OnActivate != nil {
		b.OnActivate(b, ref)
	}
	return collab.Handle{Ref: ref, Selector: "#" + ref}, nil
}

func (b *Browser) Exists(_ context.Context, ref string) (bool, error) {
	if err := b.record("exists:" + ref); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Browser) TypeInto(_ context.Context, h collab.Handle, text string) error {
	if err := b.record("type:" + h.Ref); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Typed[h.Ref] = append(b.Typed[h.Ref], text)
	return nil
}

func (b *Browser) WaitReady(_ context.Context, _ time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "waitReady")
	return !b.NotReady
}

func (b *Browser) OpenedWindows(_ context.Context) ([]collab.WindowHandle, error) {
	if err := b.record("windows"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]collab.WindowHandle, len(b.Windows))
	copy(out, b.Windows)
	return out, nil
}

// CloseWindow removes the window from Windows.
func (b *Browser) CloseWindow(_ context.Context, id string) error {
	if err := b.record("closeWindow:" + id); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Windows = slices.DeleteFunc(b.Windows, func(w collab.WindowHandle) bool { return w.ID == id })
	return nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Factory returns a collab.SessionFactory handing out the given browsers in
// order. It fails once the list is exhausted.
func Factory(browsers ...*Browser) collab.SessionFactory {
	var (
		mu   sync.Mutex
		next int
	)
	return func(context.Context) (collab.BrowserSession, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(browsers) {
			return nil, fmt.Errorf("no more fake sessions (handed out %d)", next)
		}
		b := browsers[next]
		next++
		return b, nil
	}
}
