// Package collab defines the capabilities the automation core needs from the
// systems it drives: the ERP browser session, the exported workbook and the
// groupware approval window. Implementations live in other packages.
package collab

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrNotFound reports that a logical element, file or window could not be located.
	ErrNotFound = errors.New("not found")

	// ErrEmpty reports that expected data (a cell, a column) exists but holds nothing.
	ErrEmpty = errors.New("empty")

	// ErrTimeout reports that the external system did not reach the awaited state in time.
	ErrTimeout = errors.New("timed out")

	// ErrUnavailable reports a connectivity problem with the external system.
	ErrUnavailable = errors.New("unavailable")
)

// Credentials are passed through to the ERP login untouched.
type Credentials struct {
	Identity string
	Secret   string
}

// LogValue keeps the secret out of every log record.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("identity", c.Identity))
}

// Handle identifies an element that was found and activated.
type Handle struct {
	Ref      string
	Selector string
}

// WindowHandle identifies one browser window (tab or popup).
type WindowHandle struct {
	ID    string
	URL   string
	Title string
}

// BrowserSession drives the ERP web UI. Element matching strategies are an
// implementation detail; callers only use logical element references.
type BrowserSession interface {
	Authenticate(ctx context.Context, creds Credentials) error
	Navigate(ctx context.Context, target string) error
	FindAndActivate(ctx context.Context, ref string) (Handle, error)
	// Exists reports whether ref is on the page without interacting with it.
	Exists(ctx context.Context, ref string) (bool, error)
	TypeInto(ctx context.Context, h Handle, text string) error
	WaitReady(ctx context.Context, timeout time.Duration) bool
	OpenedWindows(ctx context.Context) ([]WindowHandle, error)
	CloseWindow(ctx context.Context, id string) error
	Close() error
}

// Row is one worksheet row; cells are addressed by column letter.
type Row interface {
	Number() int
	Cell(column string) string
}

// Workbook reads the dataset the ERP exported and runs the external transform.
type Workbook interface {
	// FindLatestDownloadedFile returns the newest matching file in dir
	// modified at or after since.
	FindLatestDownloadedFile(dir string, since time.Time) (string, error)
	ReadColumn(path string, keep func(Row) bool, column string) ([]string, error)
	ReadCell(path string, row int, column string) (string, error)
	RunTransform(ctx context.Context, path string) error
}

// ApprovalSession submits an approval request in the groupware system.
type ApprovalSession interface {
	SubmitForApproval(ctx context.Context, title string, metadata map[string]string) error
}

// ApprovalOpener attaches an ApprovalSession to a window that the ERP opened.
type ApprovalOpener interface {
	OpenApproval(ctx context.Context, session BrowserSession, window WindowHandle) (ApprovalSession, error)
}

// SessionFactory opens a fresh browser session for one cycle.
type SessionFactory func(ctx context.Context) (BrowserSession, error)
