// Package workbook reads the spreadsheets the ERP exports and runs the
// external transform over them.
package workbook

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/xuri/excelize/v2"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
)

// Excel implements collab.Workbook on top of excelize.
type Excel struct {
	cfg api.WorkbookConfig
}

var _ collab.Workbook = (*Excel)(nil)

// New returns a workbook adapter for cfg.
func New(cfg api.WorkbookConfig) *Excel {
	return &Excel{cfg: cfg}
}

// FindLatestDownloadedFile returns the newest file in dir that matches the
// configured patterns and was modified at or after since. Older matches are
// leftovers from earlier runs and never count as a download.
func (e *Excel) FindLatestDownloadedFile(dir string, since time.Time) (string, error) {
	matches, err := globFS(os.DirFS(dir), e.cfg.Patterns)
	if err != nil {
		return "", err
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, m := range matches {
		info, err := fs.Stat(os.DirFS(dir), m)
		if err != nil || info.IsDir() {
			continue
		}
		mod := info.ModTime()
		if mod.Before(since) {
			continue
		}
		if latest == "" || mod.After(latestAt) {
			latest, latestAt = m, mod
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no file matching %v in %s modified since %s: %w",
			e.cfg.Patterns, dir, since.Format(time.RFC3339), collab.ErrNotFound)
	}

	path := filepath.Join(dir, filepath.FromSlash(latest))
	slog.Debug("found downloaded file", "path", path, "modified", latestAt)
	return path, nil
}

func globFS(fsys fs.FS, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}

type row struct {
	n     int
	cells []string
}

func (r row) Number() int { return r.n }

func (r row) Cell(column string) string {
	idx, err := excelize.ColumnNameToNumber(column)
	if err != nil || idx > len(r.cells) {
		return ""
	}
	return r.cells[idx-1]
}

// ReadColumn returns column of every row keep accepts, in sheet order. A nil
// keep accepts all rows.
func (e *Excel) ReadColumn(path string, keep func(collab.Row) bool, column string) ([]string, error) {
	if _, err := excelize.ColumnNameToNumber(column); err != nil {
		return nil, fmt.Errorf("column %q: %w", column, err)
	}

	f, sheet, err := e.open(path)
	if err != nil {
		return nil, err
	}
	defer closeFile(f, path)

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
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

// ReadCell returns the formatted value of one cell. Blank cells yield
// collab.ErrEmpty.
func (e *Excel) ReadCell(path string, rowNumber int, column string) (string, error) {
	col, err := excelize.ColumnNameToNumber(column)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", column, err)
	}
	cell, err := excelize.CoordinatesToCellName(col, rowNumber)
	if err != nil {
		return "", fmt.Errorf("cell %s%d: %w", column, rowNumber, err)
	}

	f, sheet, err := e.open(path)
	if err != nil {
		return "", err
	}
	defer closeFile(f, path)

	v, err := f.GetCellValue(sheet, cell)
	if err != nil {
		return "", fmt.Errorf("reading %s!%s of %s: %w", sheet, cell, path, err)
	}
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("cell %s of %s: %w", cell, path, collab.ErrEmpty)
	}
	return v, nil
}

func (e *Excel) open(path string) (*excelize.File, string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening workbook %s: %w", path, err)
	}

	sheet := e.cfg.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			closeFile(f, path)
			return nil, "", fmt.Errorf("workbook %s has no sheets: %w", path, collab.ErrEmpty)
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		closeFile(f, path)
		return nil, "", fmt.Errorf("workbook %s has no sheet %q: %w", path, sheet, collab.ErrNotFound)
	}
	return f, sheet, nil
}

func closeFile(f *excelize.File, path string) {
	if err := f.Close(); err != nil {
		slog.Warn("failed to close workbook", "path", path, "error", err)
	}
}
