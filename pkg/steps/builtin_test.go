package steps

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/collab/collabtest"
)

func TestBuiltinPipeline_HappyPath(t *testing.T) {
	f := newFixture(t)
	p, err := NewPipeline(f.deps())
	if err != nil {
		t.Fatal(err)
	}

	exec := NewExecutor()
	for _, def := range p {
		out := exec.Execute(context.Background(), def, f.pc)
		if !out.Succeeded() {
			t.Fatalf("step %s failed: %+v", def.Name, out)
		}
	}

	if got := f.pc.String(FactDownloadedFile); got != exportPath {
		t.Errorf("downloaded file = %q", got)
	}
	if diff := cmp.Diff([]string{"G1", "G2"}, f.pc.Strings(FactFiledKeys)); diff != "" {
		t.Errorf("filed keys mismatch (-want +got):\n%s", diff)
	}
	if f.pc.String(FactLastProcessedCode) != "G2" || f.pc.String(FactLastProcessedValue) != "75" || f.pc.String(FactLastProcessedDate) != "2024-03-15" {
		t.Errorf("unexpected last processed facts: %v", f.pc.Facts())
	}
	if f.pc.String(FactDueDate) != "2024-04-30" {
		t.Errorf("due date = %q", f.pc.String(FactDueDate))
	}

	want := []collabtest.Submission{{
		Title:    "Receipts V100 2024-03-01",
		Metadata: map[string]string{"amount": "75"},
	}}
	if diff := cmp.Diff(want, f.approval.Submitted); diff != "" {
		t.Errorf("approval mismatch (-want +got):\n%s", diff)
	}
	if len(f.opener.Opened) != 1 || f.opener.Opened[0].ID != "groupware-1" {
		t.Errorf("approval attached to wrong window: %+v", f.opener.Opened)
	}
	if !slices.Equal(f.workbook.Transformed, []string{exportPath}) {
		t.Errorf("transform ran on %v", f.workbook.Transformed)
	}
	if got := f.browser.Typed[api.ElementEntryFilter]; !slices.Equal(got, []string{"R-001", "R-003"}) {
		t.Errorf("entry filters typed = %v", got)
	}
}

func TestAuthenticate_IncompleteCredentialsIsFatal(t *testing.T) {
	f := newFixture(t)
	f.pc.Credentials.Secret = ""

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepAuthenticate), f.pc)
	if out.Kind != Fatal || out.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if f.browser.Count("authenticate") != 0 {
		t.Error("should not try to sign in")
	}
}

func TestAuthenticate_RetriesNetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.browser.FailWith("authenticate", collab.ErrUnavailable)

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepAuthenticate), f.pc)
	if !out.Succeeded() || out.Attempts != 2 {
		t.Errorf("expected success on second attempt, got %+v", out)
	}
}

func TestLocate_SkipsKeyFilterWithoutParameter(t *testing.T) {
	f := newFixture(t)
	f.pc.Parameter = ""
	f.seed(Payload{FactAuthenticatedAt: "now"})

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepLocateRecords), f.pc)
	if !out.Succeeded() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.browser.Count("activate:"+api.ElementFilterKey) != 0 {
		t.Error("key filter should not be used without a parameter")
	}
	if got := f.browser.Typed[api.ElementFilterFrom]; !slices.Equal(got, []string{"2024-03-01"}) {
		t.Errorf("from filter typed %v", got)
	}
}

func TestLocate_ResultsNeverAppear(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactAuthenticatedAt: "now"})
	f.cfg.Steps[api.StepLocateRecords] = api.RetryConfig{MaxAttempts: 1}
	notFound := make([]error, 1000)
	for i := range notFound {
		notFound[i] = collab.ErrNotFound
	}
	f.browser.FailWith("exists:"+api.ElementResultsTable, notFound...)

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepLocateRecords), f.pc)
	if out.Kind != TransientUI {
		t.Errorf("expected transient UI failure, got %+v", out)
	}
	if f.browser.Count("exists:"+api.ElementResultsTable) < 2 {
		t.Errorf("result grid polled %d times", f.browser.Count("exists:"+api.ElementResultsTable))
	}
	if n := f.browser.Count("activate:" + api.ElementResultsTable); n != 0 {
		t.Errorf("result grid clicked %d times while polling", n)
	}
}

func TestExport_WaitsForDownload(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactRecordsLocated: true})
	f.workbook.PollsUntilDownload = 3

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepExportDataset), f.pc)
	if !out.Succeeded() || out.Attempts != 1 {
		t.Fatalf("expected success on first attempt, got %+v", out)
	}
	if out.Payload[FactDownloadedFile] != exportPath {
		t.Errorf("payload = %v", out.Payload)
	}
	for _, since := range f.workbook.Since {
		if !since.Equal(fixtureNow) {
			t.Errorf("download searched since %v, want click time %v", since, fixtureNow)
		}
	}
}

func TestExport_StaleDownloadIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactRecordsLocated: true})
	f.workbook.DownloadedAt = fixtureNow.Add(-time.Minute)
	f.cfg.Steps[api.StepExportDataset] = api.RetryConfig{MaxAttempts: 1}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepExportDataset), f.pc)
	if out.Succeeded() || out.Kind != Network {
		t.Errorf("expected network failure, got %+v", out)
	}
}

func TestExport_NoDownloadIsNetwork(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactRecordsLocated: true})
	f.workbook.Download = ""
	f.cfg.Steps[api.StepExportDataset] = api.RetryConfig{MaxAttempts: 1}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepExportDataset), f.pc)
	if out.Kind != Network {
		t.Errorf("expected network failure, got %+v", out)
	}
}

func TestTransform_MacroFailureIsDataIntegrity(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactDownloadedFile: exportPath})
	f.workbook.TransformErr = errors.New("exit status 1")

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepTransform), f.pc)
	if out.Kind != DataIntegrity || out.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if f.pc.Has(FactTransformedFile) {
		t.Error("failed transform must not produce a fact")
	}
}

func TestTransform_TimeoutIsRetried(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactDownloadedFile: exportPath})
	f.workbook.TransformErr = context.DeadlineExceeded

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepTransform), f.pc)
	if out.Kind != Network || out.Attempts != 2 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestFileEntries_ToleratesFailingKey(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactTransformedFile: exportPath})
	rows := sheetRows()
	rows[1]["B"] = ""
	rows[2]["B"] = ""
	f.workbook.Sheets[exportPath] = rows

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepFileEntries), f.pc)
	if !out.Succeeded() {
		t.Fatalf("expected success despite one failing key, got %+v", out)
	}
	if diff := cmp.Diff([]string{"G2"}, f.pc.Strings(FactFiledKeys)); diff != "" {
		t.Errorf("filed keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"G1"}, f.pc.Strings(FactFailedKeys)); diff != "" {
		t.Errorf("failed keys (-want +got):\n%s", diff)
	}
}

func TestFileEntries_ConfirmIsNeverRepeated(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactTransformedFile: exportPath})
	f.browser.OnActivate = func(b *collabtest.Browser, ref string) {
		if ref == api.ElementEntryConfirm {
			b.NotReady = true
		}
	}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepFileEntries), f.pc)
	if !out.Succeeded() || out.Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if n := f.browser.Count("activate:" + api.ElementEntryConfirm); n != 2 {
		t.Errorf("confirm clicked %d times for 2 keys", n)
	}
	if diff := cmp.Diff([]string{"G1", "G2"}, f.pc.Strings(FactFiledKeys)); diff != "" {
		t.Errorf("filed keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"G1", "G2"}, f.pc.Strings(FactUnverifiedKeys)); diff != "" {
		t.Errorf("unverified keys (-want +got):\n%s", diff)
	}
}

func TestFileEntries_RetriesSelectOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactTransformedFile: exportPath})
	f.browser.FailWith("activate:"+api.ElementEntrySelect, collab.ErrNotFound)

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepFileEntries), f.pc)
	if !out.Succeeded() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if n := f.browser.Count("activate:" + api.ElementEntrySelect); n != 3 {
		t.Errorf("select clicked %d times, want 3", n)
	}
	if n := f.browser.Count("activate:" + api.ElementEntryConfirm); n != 2 {
		t.Errorf("confirm clicked %d times, want 2", n)
	}
	if got := f.pc.Strings(FactUnverifiedKeys); len(got) != 0 {
		t.Errorf("unexpected unverified keys %v", got)
	}
}

func TestFileEntries_OverrideCannotRepeatStep(t *testing.T) {
	f := newFixture(t)
	f.cfg.Steps[api.StepFileEntries] = api.RetryConfig{MaxAttempts: 4}

	if def := f.step(t, api.StepFileEntries); def.Retry.MaxAttempts != 1 {
		t.Errorf("max attempts = %d", def.Retry.MaxAttempts)
	}
}

func TestFileEntries_AllKeysFail(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactTransformedFile: exportPath})
	f.cfg.Steps[api.StepFileEntries] = api.RetryConfig{MaxAttempts: 1}
	rows := sheetRows()
	for _, r := range rows[1:] {
		r["B"] = ""
	}
	f.workbook.Sheets[exportPath] = rows

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepFileEntries), f.pc)
	if out.Kind != DataIntegrity {
		t.Errorf("expected data integrity failure, got %+v", out)
	}
}

func TestFileEntries_NoKeys(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactTransformedFile: exportPath})
	f.workbook.Sheets[exportPath] = sheetRows()[:1]

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepFileEntries), f.pc)
	if out.Kind != DataIntegrity || out.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestApplyDates_MissingDueDate(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactTransformedFile: exportPath, FactLastProcessedDate: "2024-03-15"})
	f.cfg.Workbook.DueDateCell = api.CellRef{Row: 3, Column: "F"}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepApplyDates), f.pc)
	if out.Kind != DataIntegrity || out.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestApproval_Disabled(t *testing.T) {
	f := newFixture(t)
	disabled := false
	f.cfg.Approval.Enabled = &disabled

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepSubmitApproval), f.pc)
	if !out.Skipped() {
		t.Errorf("expected skipped outcome, got %+v", out)
	}
}

func TestApproval_MissingAdapterIsFatal(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactFiledKeys: []string{"G1"}, FactDueDate: "2024-04-30"})
	deps := f.deps()
	deps.Approvals = nil
	def, err := NewStep(api.StepSubmitApproval, deps)
	if err != nil {
		t.Fatal(err)
	}

	out := NewExecutor().Execute(context.Background(), def, f.pc)
	if out.Kind != Fatal || out.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestApproval_PicksNewWindowNotIndex(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactFiledKeys: []string{"G1"}, FactDueDate: "2024-04-30"})
	f.browser.Windows = []collab.WindowHandle{{ID: "main"}, {ID: "report-popup"}}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepSubmitApproval), f.pc)
	if !out.Succeeded() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Payload[FactApprovalWindow] != "groupware-1" {
		t.Errorf("attached to %v", out.Payload[FactApprovalWindow])
	}
}

func TestApproval_SubmitFailureIsNotRepeated(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactFiledKeys: []string{"G1"}, FactDueDate: "2024-04-30"})
	f.cfg.Steps[api.StepSubmitApproval] = api.RetryConfig{MaxAttempts: 3}
	f.approval.Err = collab.ErrUnavailable

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepSubmitApproval), f.pc)
	if out.Kind != Network || out.Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if n := f.browser.Count("activate:" + api.ElementApprovalOpen); n != 1 {
		t.Errorf("approval opened %d times", n)
	}
	if f.approval.Attempts != 1 {
		t.Errorf("submitted %d times", f.approval.Attempts)
	}
	if n := f.browser.Count("closeWindow:groupware-1"); n != 1 {
		t.Errorf("abandoned window closed %d times", n)
	}
	if slices.ContainsFunc(f.browser.Windows, func(w collab.WindowHandle) bool { return w.ID == "groupware-1" }) {
		t.Error("abandoned window still open")
	}
}

func TestApproval_RetriesAttachOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactFiledKeys: []string{"G1"}, FactDueDate: "2024-04-30"})
	f.opener.Failures = []error{collab.ErrNotFound}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepSubmitApproval), f.pc)
	if !out.Succeeded() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.opener.Attempts != 2 {
		t.Errorf("attached %d times, want 2", f.opener.Attempts)
	}
	if n := f.browser.Count("activate:" + api.ElementApprovalOpen); n != 1 {
		t.Errorf("approval opened %d times", n)
	}
	if len(f.approval.Submitted) != 1 {
		t.Errorf("submitted %d times", len(f.approval.Submitted))
	}
	if n := f.browser.Count("closeWindow:groupware-1"); n != 0 {
		t.Errorf("completed window closed %d times", n)
	}
}

func TestApproval_AttachFailureClosesWindow(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactFiledKeys: []string{"G1"}, FactDueDate: "2024-04-30"})
	f.opener.Err = NewError(Fatal, errors.New("groupware refused session"))

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepSubmitApproval), f.pc)
	if out.Kind != Fatal {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if f.opener.Attempts != 1 {
		t.Errorf("fatal attach retried: %d attempts", f.opener.Attempts)
	}
	if n := f.browser.Count("closeWindow:groupware-1"); n != 1 {
		t.Errorf("abandoned window closed %d times", n)
	}
}

func TestApproval_WindowNeverOpens(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactFiledKeys: []string{"G1"}, FactDueDate: "2024-04-30"})
	f.browser.OnActivate = nil
	f.cfg.Steps[api.StepSubmitApproval] = api.RetryConfig{MaxAttempts: 1}

	out := NewExecutor().Execute(context.Background(), f.step(t, api.StepSubmitApproval), f.pc)
	if out.Kind != Network {
		t.Errorf("expected network timeout, got %+v", out)
	}
	if len(f.approval.Submitted) != 0 {
		t.Error("nothing should be submitted")
	}
}
