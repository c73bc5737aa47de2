package steps

import (
	"strings"
	"testing"

	"github.com/systemstart/receiptflow/pkg/api"
)

func TestRenderApproval(t *testing.T) {
	f := newFixture(t)
	f.seed(Payload{FactLastProcessedValue: "1200", FactFiledKeys: []string{"G1", "G2"}})

	title, meta, err := renderApproval(
		`{{ .Parameter | lower }} {{ .DateRange.From | date "2006-01" }}`,
		map[string]string{
			"keys":  `{{ .Facts.filedKeys | join "," }}`,
			"total": `{{ .Facts.lastProcessedValue }}`,
			"none":  `{{ .Facts.unknown }}`,
		},
		newTemplateData(f.pc, api.DateLayout),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if title != "v100 2024-03" {
		t.Errorf("title = %q", title)
	}
	if meta["keys"] != "G1,G2" || meta["total"] != "1200" {
		t.Errorf("metadata = %v", meta)
	}
	if meta["none"] != "<no value>" && meta["none"] != "" {
		t.Errorf("missing fact rendered as %q", meta["none"])
	}
}

func TestRenderText_Errors(t *testing.T) {
	if _, err := renderText("bad", "{{ .X", nil); err == nil || !strings.Contains(err.Error(), "parsing template") {
		t.Errorf("expected parse error, got %v", err)
	}
	if _, err := renderText("bad", `{{ fail "nope" }}`, nil); err == nil || !strings.Contains(err.Error(), "executing template") {
		t.Errorf("expected execution error, got %v", err)
	}
}

func TestPipelineContext_FreshPerCycle(t *testing.T) {
	a := newContext()
	b := newContext()
	a.merge(Payload{"x": 1})

	if b.Has("x") {
		t.Error("contexts must not share facts")
	}
	if a.CorrelationID == b.CorrelationID {
		t.Error("each context needs its own correlation id")
	}
	facts := a.Facts()
	facts["y"] = 2
	if a.Has("y") {
		t.Error("Facts must return a copy")
	}
	if a.String("x") != "1" {
		t.Errorf("String(x) = %q", a.String("x"))
	}
}
