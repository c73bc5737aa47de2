package steps

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/wait"
)

// recordRetry covers locating and selecting a record for one grouping key.
// Confirming is never repeated.
var recordRetry = RetryPolicy{MaxAttempts: 2, Backoff: time.Second}

type fileEntriesStep struct {
	deps Deps
}

func newFileEntriesStep(deps Deps) Definition {
	s := &fileEntriesStep{deps: deps}
	return Definition{
		Run:      s.Run,
		Retry:    NoRetry,
		RunOnce:  true,
		Requires: []string{FactTransformedFile},
		Produces: []string{
			FactFiledKeys,
			FactFailedKeys,
			FactUnverifiedKeys,
			FactLastProcessedCode,
			FactLastProcessedValue,
			FactLastProcessedDate,
		},
	}
}

// Run files one ERP entry per distinct grouping key of the transformed sheet.
// A key that fails is logged and skipped; the step only fails when nothing
// could be filed. A key whose confirmation was sent but whose page never
// settled counts as filed and is listed as unverified.
func (s *fileEntriesStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	session, err := browserOf(pc)
	if err != nil {
		return nil, err
	}
	cfg := s.deps.Config
	path := pc.String(FactTransformedFile)
	cols := cfg.Workbook.Columns

	keys, err := s.groupingKeys(path)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, Errorf(DataIntegrity, "no grouping keys in column %s of %s", cols.GroupingKey, path)
	}

	if cfg.ERP.EntriesPath != "" {
		if err := session.Navigate(ctx, pageURL(cfg.ERP.BaseURL, cfg.ERP.EntriesPath)); err != nil {
			return nil, fmt.Errorf("opening entries page: %w", err)
		}
		if err := awaitReady(ctx, session, cfg.Browser.ReadyTimeout); err != nil {
			return nil, err
		}
	}

	var filed, failedKeys, unverified []string
	for _, key := range keys {
		settled, err := s.fileEntry(ctx, session, path, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pc.logger().Warn("grouping key failed, continuing", "key", key, "kind", Classify(err), "error", err)
			failedKeys = append(failedKeys, key)
			continue
		}
		if settled {
			pc.logger().Info("entry filed", "key", key)
		} else {
			pc.logger().Warn("entry confirmed but page did not settle", "key", key)
			unverified = append(unverified, key)
		}
		filed = append(filed, key)
	}

	if len(filed) == 0 {
		return nil, Errorf(DataIntegrity, "all %d grouping keys failed: %s", len(keys), strings.Join(failedKeys, ", "))
	}

	last := filed[len(filed)-1]
	value, err := s.lastValue(path, last, cols.Amount)
	if err != nil {
		return nil, err
	}
	date, err := s.lastValue(path, last, cols.Date)
	if err != nil {
		return nil, err
	}

	return Payload{
		FactFiledKeys:          filed,
		FactFailedKeys:         failedKeys,
		FactUnverifiedKeys:     unverified,
		FactLastProcessedCode:  last,
		FactLastProcessedValue: value,
		FactLastProcessedDate:  date,
	}, nil
}

func (s *fileEntriesStep) groupingKeys(path string) ([]string, error) {
	wb := s.deps.Config.Workbook
	values, err := s.deps.Workbook.ReadColumn(path, func(r collab.Row) bool {
		return r.Number() > wb.HeaderRows && strings.TrimSpace(r.Cell(wb.Columns.GroupingKey)) != ""
	}, wb.Columns.GroupingKey)
	if err != nil {
		return nil, asDataIntegrity(fmt.Errorf("reading grouping keys: %w", err))
	}

	var keys []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if !slices.Contains(keys, v) {
			keys = append(keys, v)
		}
	}
	return keys, nil
}

// keyRows selects the data rows belonging to one grouping key.
func (s *fileEntriesStep) keyRows(key string) func(collab.Row) bool {
	wb := s.deps.Config.Workbook
	return func(r collab.Row) bool {
		return r.Number() > wb.HeaderRows && strings.TrimSpace(r.Cell(wb.Columns.GroupingKey)) == key
	}
}

// fileEntry selects the record for key, retrying that part, then confirms it
// exactly once. settled is false when the confirmation went out but the page
// did not become ready afterwards.
func (s *fileEntriesStep) fileEntry(ctx context.Context, session collab.BrowserSession, path, key string) (settled bool, err error) {
	filterValues, err := s.deps.Workbook.ReadColumn(path, s.keyRows(key), s.deps.Config.Workbook.Columns.FilterKey)
	if err != nil {
		return false, asDataIntegrity(fmt.Errorf("reading filter key for %s: %w", key, err))
	}
	if len(filterValues) == 0 || strings.TrimSpace(filterValues[0]) == "" {
		return false, Errorf(DataIntegrity, "grouping key %s has no filter key", key)
	}
	filter := strings.TrimSpace(filterValues[0])

	_, _, err = wait.Retry(ctx, recordRetry.waitPolicy(), func(ctx context.Context, _ int) (struct{}, error) {
		if err := fill(ctx, session, api.ElementEntryFilter, filter); err != nil {
			return struct{}{}, err
		}
		_, err := activate(ctx, session, api.ElementEntrySelect)
		return struct{}{}, err
	})
	if err != nil {
		return false, err
	}

	if _, err := activate(ctx, session, api.ElementEntryConfirm); err != nil {
		return false, err
	}
	if err := awaitReady(ctx, session, s.deps.Config.Browser.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

func (s *fileEntriesStep) lastValue(path, key, column string) (string, error) {
	values, err := s.deps.Workbook.ReadColumn(path, s.keyRows(key), column)
	if err != nil {
		return "", asDataIntegrity(fmt.Errorf("reading column %s for %s: %w", column, key, err))
	}
	if len(values) == 0 || strings.TrimSpace(values[len(values)-1]) == "" {
		return "", Errorf(DataIntegrity, "grouping key %s has no value in column %s", key, column)
	}
	return strings.TrimSpace(values[len(values)-1]), nil
}

// asDataIntegrity marks workbook read failures as data problems unless they
// already carry a classification.
func asDataIntegrity(err error) error {
	var stepErr *Error
	if errors.As(err, &stepErr) {
		return err
	}
	return NewError(DataIntegrity, err)
}
