package api

import "time"

const (
	DateLayout = "2006-01-02"

	StepAuthenticate   = "authenticate"
	StepLocateRecords  = "locate-records"
	StepExportDataset  = "export-dataset"
	StepTransform      = "transform-dataset"
	StepFileEntries    = "file-entries"
	StepApplyDates     = "apply-dates"
	StepSubmitApproval = "submit-approval"

	DefaultInterCycleDelay   = 5 * time.Second
	DefaultDownloadTimeout   = 2 * time.Minute
	DefaultReadyTimeout      = 30 * time.Second
	DefaultActionTimeout     = 15 * time.Second
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultTransformTimeout  = 10 * time.Minute
	DefaultWindowTimeout     = 30 * time.Second
	DefaultHeaderRows        = 1
	DefaultNetworkBackoffMul = 3.0
)

// Logical element references used by the pipeline. Their selectors come from
// browser.elements in the run configuration.
const (
	ElementLoginIdentity  = "login.identity"
	ElementLoginSecret    = "login.secret"
	ElementLoginSubmit    = "login.submit"
	ElementFilterFrom     = "filter.from"
	ElementFilterTo       = "filter.to"
	ElementFilterKey      = "filter.key"
	ElementFilterSearch   = "filter.search"
	ElementResultsTable   = "results.table"
	ElementExportButton   = "export.button"
	ElementEntryFilter    = "entry.filter"
	ElementEntrySelect    = "entry.select"
	ElementEntryConfirm   = "entry.confirm"
	ElementDueDate        = "dates.due"
	ElementDatesApply     = "dates.apply"
	ElementApprovalOpen   = "approval.open"
	ElementApprovalTitle  = "approval.title"
	ElementApprovalSubmit = "approval.submit"

	// ElementApprovalFieldPrefix prefixes the refs of approval metadata
	// fields: key "costCenter" is typed into "approval.field.costCenter".
	ElementApprovalFieldPrefix = "approval.field."
)

// RequiredElements must have at least one selector configured.
var RequiredElements = []string{
	ElementLoginIdentity,
	ElementLoginSecret,
	ElementLoginSubmit,
	ElementFilterFrom,
	ElementFilterTo,
	ElementFilterSearch,
	ElementResultsTable,
	ElementExportButton,
	ElementEntryFilter,
	ElementEntrySelect,
	ElementEntryConfirm,
	ElementDueDate,
	ElementDatesApply,
}

// StepNames lists the built-in pipeline steps in execution order.
var StepNames = []string{
	StepAuthenticate,
	StepLocateRecords,
	StepExportDataset,
	StepTransform,
	StepFileEntries,
	StepApplyDates,
	StepSubmitApproval,
}

// Config is the run configuration file format.
type Config struct {
	ERP       ERPConfig              `yaml:"erp"`
	Browser   BrowserConfig          `yaml:"browser"`
	Workbook  WorkbookConfig         `yaml:"workbook"`
	DateRange *DateRangeConfig       `yaml:"dateRange,omitempty"`
	Approval  ApprovalConfig         `yaml:"approval"`
	Batch     BatchConfig            `yaml:"batch"`
	Steps     map[string]RetryConfig `yaml:"steps"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// ERPConfig locates the ERP pages the pipeline visits.
type ERPConfig struct {
	BaseURL      string `yaml:"baseURL"`
	LoginPath    string `yaml:"loginPath"`
	ReceiptsPath string `yaml:"receiptsPath"`
	EntriesPath  string `yaml:"entriesPath"`
	DateFormat   string `yaml:"dateFormat"` // Go layout, default 2006-01-02
}

// BrowserConfig configures the browser session.
type BrowserConfig struct {
	Headless      *bool               `yaml:"headless,omitempty"` // default true
	ExecPath      string              `yaml:"execPath"`
	UserDataDir   string              `yaml:"userDataDir"`
	ReadyTimeout  time.Duration       `yaml:"readyTimeout"`
	ActionTimeout time.Duration       `yaml:"actionTimeout"`
	PollInterval  time.Duration       `yaml:"pollInterval"`
	Elements      map[string][]string `yaml:"elements"`
}

// WorkbookConfig describes where exports land and how to read them.
type WorkbookConfig struct {
	DownloadDir     string          `yaml:"downloadDir"`
	Patterns        []string        `yaml:"patterns"`
	DownloadTimeout time.Duration   `yaml:"downloadTimeout"`
	Sheet           string          `yaml:"sheet"`
	HeaderRows      int             `yaml:"headerRows"`
	Columns         ColumnConfig    `yaml:"columns"`
	DueDateCell     CellRef         `yaml:"dueDateCell"`
	Transform       TransformConfig `yaml:"transform"`
}

// ColumnConfig names the worksheet columns by letter.
type ColumnConfig struct {
	GroupingKey string `yaml:"groupingKey"`
	FilterKey   string `yaml:"filterKey"`
	Date        string `yaml:"date"`
	Amount      string `yaml:"amount"`
}

// CellRef addresses one worksheet cell.
type CellRef struct {
	Row    int    `yaml:"row"`
	Column string `yaml:"column"`
}

// TransformConfig runs the external spreadsheet macro. Command and Args are
// templates rendered with {{ .Path }} and {{ .Dir }}.
type TransformConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// DateRangeConfig fixes the filter range. Without it the previous calendar
// month is used.
type DateRangeConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ApprovalConfig configures the approval request. Title and Metadata values
// are templates.
type ApprovalConfig struct {
	Enabled       *bool             `yaml:"enabled,omitempty"` // default true
	Title         string            `yaml:"title"`
	Metadata      map[string]string `yaml:"metadata"`
	WindowTimeout time.Duration     `yaml:"windowTimeout"`
}

// BatchConfig configures the cycle loop.
type BatchConfig struct {
	Parameters         []string       `yaml:"parameters"`
	InterCycleDelay    *time.Duration `yaml:"interCycleDelay,omitempty"` // default 5s
	KeepSessionOnFatal bool           `yaml:"keepSessionOnFatal"`
	JournalDir         string         `yaml:"journalDir"`
}

// RetryConfig overrides the retry policy of one step.
type RetryConfig struct {
	MaxAttempts          int           `yaml:"maxAttempts"`
	Backoff              time.Duration `yaml:"backoff"`
	Multiplier           float64       `yaml:"multiplier"`
	MaxBackoff           time.Duration `yaml:"maxBackoff"`
	NetworkBackoffFactor float64       `yaml:"networkBackoffFactor"`
}

// HeadlessEnabled reports whether the browser runs without a window.
func (b BrowserConfig) HeadlessEnabled() bool {
	return b.Headless == nil || *b.Headless
}

// Delay returns the pause between cycles; zero is a valid setting.
func (b BatchConfig) Delay() time.Duration {
	if b.InterCycleDelay == nil {
		return DefaultInterCycleDelay
	}
	return *b.InterCycleDelay
}

// ApprovalEnabled reports whether the approval step runs.
func (a ApprovalConfig) ApprovalEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}
