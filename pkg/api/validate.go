package api

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/bmatcuk/doublestar/v4"
)

var columnPattern = regexp.MustCompile(`^[A-Z]{1,3}$`)

var approvalElements = []string{
	ElementApprovalOpen,
	ElementApprovalTitle,
	ElementApprovalSubmit,
}

// Validate checks the run configuration for errors.
func (c *Config) Validate() error {
	if err := c.ERP.validate(); err != nil {
		return fmt.Errorf("erp: %w", err)
	}
	if err := c.Browser.validate(c.Approval); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	if err := c.Workbook.validate(); err != nil {
		return fmt.Errorf("workbook: %w", err)
	}
	if c.DateRange != nil {
		if _, _, err := c.DateRange.Parse(); err != nil {
			return fmt.Errorf("dateRange: %w", err)
		}
	}
	if err := c.Approval.validate(); err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	if err := c.Batch.validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return validateStepOverrides(c.Steps)
}

func (e ERPConfig) validate() error {
	if e.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return fmt.Errorf("baseURL %q: %w", e.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("baseURL %q must be absolute", e.BaseURL)
	}
	return nil
}

func (b BrowserConfig) validate(approval ApprovalConfig) error {
	required := RequiredElements
	if approval.ApprovalEnabled() {
		required = append(slices.Clone(required), approvalElements...)
		for _, key := range slices.Sorted(maps.Keys(approval.Metadata)) {
			required = append(required, ElementApprovalFieldPrefix+key)
		}
	}
	for _, ref := range required {
		if !hasSelector(b.Elements[ref]) {
			return fmt.Errorf("elements.%s needs at least one selector", ref)
		}
	}
	return nil
}

func hasSelector(selectors []string) bool {
	return slices.ContainsFunc(selectors, func(s string) bool {
		return strings.TrimSpace(s) != ""
	})
}

func (w WorkbookConfig) validate() error {
	if w.DownloadDir == "" {
		return fmt.Errorf("downloadDir is required")
	}
	for _, p := range w.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("pattern %q is not a valid glob", p)
		}
	}

	columns := map[string]string{
		"columns.groupingKey": w.Columns.GroupingKey,
		"columns.filterKey":   w.Columns.FilterKey,
		"columns.date":        w.Columns.Date,
		"columns.amount":      w.Columns.Amount,
		"dueDateCell.column":  w.DueDateCell.Column,
	}
	for _, name := range slices.Sorted(maps.Keys(columns)) {
		if err := validateColumn(name, columns[name]); err != nil {
			return err
		}
	}
	if w.DueDateCell.Row < 1 {
		return fmt.Errorf("dueDateCell.row must be at least 1")
	}

	if w.Transform.Command == "" {
		return fmt.Errorf("transform.command is required")
	}
	for i, arg := range append([]string{w.Transform.Command}, w.Transform.Args...) {
		if err := parseTemplate(fmt.Sprintf("transform[%d]", i), arg); err != nil {
			return err
		}
	}
	return nil
}

func validateColumn(name, column string) error {
	if column == "" {
		return fmt.Errorf("%s is required", name)
	}
	if !columnPattern.MatchString(column) {
		return fmt.Errorf("%s %q is not a column letter", name, column)
	}
	return nil
}

// Parse returns the configured range as dates.
func (d DateRangeConfig) Parse() (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, d.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from %q: %w", d.From, err)
	}
	to, err := time.Parse(DateLayout, d.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to %q: %w", d.To, err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to %s is before from %s", d.To, d.From)
	}
	return from, to, nil
}

func (a ApprovalConfig) validate() error {
	if !a.ApprovalEnabled() {
		return nil
	}
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("title is required when approval is enabled")
	}
	if err := parseTemplate("title", a.Title); err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(a.Metadata)) {
		if err := parseTemplate("metadata."+k, a.Metadata[k]); err != nil {
			return err
		}
	}
	return nil
}

func (b BatchConfig) validate() error {
	if b.InterCycleDelay != nil && *b.InterCycleDelay < 0 {
		return fmt.Errorf("interCycleDelay must not be negative")
	}
	return ValidateParameters(b.Parameters)
}

// ValidateParameters rejects blank and duplicate batch parameters.
func ValidateParameters(params []string) error {
	seen := make(map[string]int, len(params))
	for i, p := range params {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("parameter %d: value is blank", i)
		}
		if prev, exists := seen[p]; exists {
			return fmt.Errorf("parameter %d: duplicate value %q (first defined at %d)", i, p, prev)
		}
		seen[p] = i
	}
	return nil
}

func validateStepOverrides(steps map[string]RetryConfig) error {
	for _, name := range slices.Sorted(maps.Keys(steps)) {
		if !slices.Contains(StepNames, name) {
			return fmt.Errorf("steps.%s: unknown step (valid: %s)", name, strings.Join(StepNames, ", "))
		}
		rc := steps[name]
		if rc.MaxAttempts < 0 {
			return fmt.Errorf("steps.%s: maxAttempts must not be negative", name)
		}
		if rc.Backoff < 0 || rc.MaxBackoff < 0 {
			return fmt.Errorf("steps.%s: backoff must not be negative", name)
		}
		if rc.Multiplier < 0 || rc.NetworkBackoffFactor < 0 {
			return fmt.Errorf("steps.%s: multipliers must not be negative", name)
		}
	}
	return nil
}

func parseTemplate(name, text string) error {
	if _, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text); err != nil {
		return fmt.Errorf("%s: invalid template: %w", name, err)
	}
	return nil
}
