package steps

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// templateData is what approval templates can reference.
type templateData struct {
	Cycle         int
	Parameter     string
	CorrelationID string
	From          string
	To            string
	DateRange     DateRange
	Facts         map[string]any
}

func newTemplateData(pc *PipelineContext, layout string) templateData {
	return templateData{
		Cycle:         pc.Cycle,
		Parameter:     pc.Parameter,
		CorrelationID: pc.CorrelationID,
		From:          pc.DateRange.From.Format(layout),
		To:            pc.DateRange.To.Format(layout),
		DateRange:     pc.DateRange,
		Facts:         pc.Facts(),
	}
}

func renderText(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// renderApproval renders the approval title and metadata templates.
func renderApproval(title string, metadata map[string]string, data templateData) (string, map[string]string, error) {
	renderedTitle, err := renderText("title", title, data)
	if err != nil {
		return "", nil, err
	}

	rendered := make(map[string]string, len(metadata))
	for _, k := range slices.Sorted(maps.Keys(metadata)) {
		v, err := renderText("metadata."+k, metadata[k], data)
		if err != nil {
			return "", nil, err
		}
		rendered[k] = v
	}
	return renderedTitle, rendered, nil
}
