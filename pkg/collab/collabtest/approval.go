package collabtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/systemstart/receiptflow/pkg/collab"
)

// Submission is one recorded approval request.
type Submission struct {
	Title    string
	Metadata map[string]string
}

// Approval records submissions and fails with Err when set. Attempts counts
// every call, failed or not.
type Approval struct {
	mu        sync.Mutex
	Err       error
	Attempts  int
	Submitted []Submission
}

func (a *Approval) SubmitForApproval(_ context.Context, title string, metadata map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Attempts++
	if a.Err != nil {
		return a.Err
	}
	a.Submitted = append(a.Submitted, Submission{Title: title, Metadata: metadata})
	return nil
}

// Opener hands out Session for any window and records which windows it was
// attached to. Each call pops the first error of Failures; once they are
// used up it fails with Err when set.
type Opener struct {
	Session  *Approval
	Err      error
	Failures []error
	Attempts int
	Opened   []collab.WindowHandle
}

func (o *Opener) OpenApproval(_ context.Context, _ collab.BrowserSession, window collab.WindowHandle) (collab.ApprovalSession, error) {
	o.Attempts++
	if len(o.Failures) > 0 {
		err := o.Failures[0]
		o.Failures = o.Failures[1:]
		if err != nil {
			return nil, err
		}
	}
	if o.Err != nil {
		return nil, o.Err
	}
	if o.Session == nil {
		return nil, fmt.Errorf("no approval session configured")
	}
	o.Opened = append(o.Opened, window)
	return o.Session, nil
}
