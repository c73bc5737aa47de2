package collabtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systemstart/receiptflow/pkg/collab"
)

type row struct {
	n     int
	cells map[string]string
}

func (r row) Number() int               { return r.n }
func (r row) Cell(column string) string { return r.cells[column] }

// Workbook is an in-memory collab.Workbook. Sheets maps a file path to its
// rows; row 1 is the first element.
type Workbook struct {
	mu sync.Mutex

	Sheets map[string][]map[string]string

	// Download is returned by FindLatestDownloadedFile once it has been
	// polled more than PollsUntilDownload times, unless DownloadedAt is set
	// and lies before the requested since.
	Download           string
	DownloadedAt       time.Time
	PollsUntilDownload int
	polls              int

	// Since records the since argument of every FindLatestDownloadedFile call.
	Since []time.Time

	TransformErr error
	Transformed  []string
}

// NewWorkbook returns a workbook holding one downloaded sheet.
func NewWorkbook(path string, rows []map[string]string) *Workbook {
	return &Workbook{
		Sheets:   map[string][]map[string]string{path: rows},
		Download: path,
	}
}

func (w *Workbook) FindLatestDownloadedFile(dir string, since time.Time) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	w.Since = append(w.Since, since)
	stale := !w.DownloadedAt.IsZero() && w.DownloadedAt.Before(since)
	if w.Download == "" || stale || w.polls <= w.PollsUntilDownload {
		return "", fmt.Errorf("no download in %s: %w", dir, collab.ErrNotFound)
	}
	return w.Download, nil
}

func (w *Workbook) ReadColumn(path string, keep func(collab.Row) bool, column string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.Sheets[path]
	if !ok {
		return nil, fmt.Errorf("workbook %s: %w", path, collab.ErrNotFound)
	}
	var out []string
	for i, cells := range rows {
		r := row{n: i + 1, cells: cells}
		if keep == nil || keep(r) {
			out = append(out, r.Cell(column))
		}
	}
	return out, nil
}

func (w *Workbook) ReadCell(path string, rowNumber int, column string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.Sheets[path]
	if !ok {
		return "", fmt.Errorf("workbook %s: %w", path, collab.ErrNotFound)
	}
	if rowNumber < 1 || rowNumber > len(rows) || rows[rowNumber-1][column] == "" {
		return "", fmt.Errorf("cell %s%d: %w", column, rowNumber, collab.ErrEmpty)
	}
	return rows[rowNumber-1][column], nil
}

func (w *Workbook) RunTransform(_ context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.TransformErr != nil {
		return w.TransformErr
	}
	w.Transformed = append(w.Transformed, path)
	return nil
}
