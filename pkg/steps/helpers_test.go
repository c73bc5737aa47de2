package steps

import (
	"fmt"
	"testing"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/collab/collabtest"
)

const exportPath = "/downloads/receipts.xlsx"

// fixtureNow is the clock of every fixture step.
var fixtureNow = time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC)

// testConfig returns a valid configuration with timings short enough for tests.
func testConfig(t *testing.T) *api.Config {
	t.Helper()
	c := &api.Config{
		ERP: api.ERPConfig{
			BaseURL:      "https://erp.example.com",
			LoginPath:    "/login",
			ReceiptsPath: "/receipts",
			EntriesPath:  "/entries",
		},
		Browser: api.BrowserConfig{
			ReadyTimeout: 50 * time.Millisecond,
			PollInterval: time.Millisecond,
		},
		Workbook: api.WorkbookConfig{
			DownloadDir:     "/downloads",
			DownloadTimeout: 50 * time.Millisecond,
			Columns:         api.ColumnConfig{GroupingKey: "A", FilterKey: "B", Date: "C", Amount: "D"},
			DueDateCell:     api.CellRef{Row: 2, Column: "F"},
			Transform:       api.TransformConfig{Command: "macro"},
		},
		Approval: api.ApprovalConfig{
			Title:         "Receipts {{ .Parameter }} {{ .From }}",
			Metadata:      map[string]string{"amount": "{{ .Facts.lastProcessedValue }}"},
			WindowTimeout: 50 * time.Millisecond,
		},
		Steps: map[string]api.RetryConfig{},
	}
	for _, name := range api.StepNames {
		c.Steps[name] = api.RetryConfig{Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	}
	c.ApplyDefaults()
	return c
}

func sheetRows() []map[string]string {
	return []map[string]string{
		{"A": "Group", "B": "Receipt", "C": "Date", "D": "Amount", "F": "Due"},
		{"A": "G1", "B": "R-001", "C": "2024-03-04", "D": "100", "F": "2024-04-30"},
		{"A": "G1", "B": "R-002", "C": "2024-03-09", "D": "250"},
		{"A": "G2", "B": "R-003", "C": "2024-03-15", "D": "75"},
		{"A": "", "B": "", "C": "", "D": ""},
	}
}

type fixture struct {
	cfg      *api.Config
	browser  *collabtest.Browser
	workbook *collabtest.Workbook
	approval *collabtest.Approval
	opener   *collabtest.Opener
	pc       *PipelineContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg:      testConfig(t),
		browser:  collabtest.NewBrowser(),
		workbook: collabtest.NewWorkbook(exportPath, sheetRows()),
		approval: &collabtest.Approval{},
	}
	f.opener = &collabtest.Opener{Session: f.approval}
	popups := 0
	f.browser.OnActivate = func(b *collabtest.Browser, ref string) {
		if ref == api.ElementApprovalOpen {
			popups++
			b.OpenWindow(collab.WindowHandle{ID: fmt.Sprintf("groupware-%d", popups), URL: "https://gw.example.com/approve"})
		}
	}

	dr := DateRange{
		From: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
	f.pc = NewPipelineContext(0, "V100", collab.Credentials{Identity: "clerk", Secret: "s3cret"}, dr, f.browser)
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Config:    f.cfg,
		Workbook:  f.workbook,
		Approvals: f.opener,
		Now:       func() time.Time { return fixtureNow },
	}
}

func (f *fixture) step(t *testing.T, name string) Definition {
	t.Helper()
	def, err := NewStep(name, f.deps())
	if err != nil {
		t.Fatal(err)
	}
	return def
}

// seed stores facts as if earlier steps had produced them.
func (f *fixture) seed(p Payload) {
	f.pc.merge(p)
}
