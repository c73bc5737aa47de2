package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

const (
	prefixText  = "text="
	prefixXPath = "xpath="
	prefixCSS   = "css="
)

// selector is one configured way to locate an element. Configured values
// are CSS by default; "xpath=" and "text=" switch to document search.
type selector struct {
	raw   string
	query string
	opts  []chromedp.QueryOption
}

func parseSelector(raw string) selector {
	switch {
	case strings.HasPrefix(raw, prefixText):
		text := strings.TrimPrefix(raw, prefixText)
		return selector{
			raw:   raw,
			query: fmt.Sprintf("//*[contains(normalize-space(text()), %s)]", xpathLiteral(text)),
			opts:  []chromedp.QueryOption{chromedp.BySearch},
		}
	case strings.HasPrefix(raw, prefixXPath):
		return selector{raw: raw, query: strings.TrimPrefix(raw, prefixXPath), opts: []chromedp.QueryOption{chromedp.BySearch}}
	case strings.HasPrefix(raw, prefixCSS):
		return selector{raw: raw, query: strings.TrimPrefix(raw, prefixCSS), opts: []chromedp.QueryOption{chromedp.ByQuery}}
	default:
		return selector{raw: raw, query: raw, opts: []chromedp.QueryOption{chromedp.ByQuery}}
	}
}

func (s selector) with(extra ...chromedp.QueryOption) []chromedp.QueryOption {
	opts := make([]chromedp.QueryOption, 0, len(s.opts)+len(extra))
	opts = append(opts, s.opts...)
	return append(opts, extra...)
}

// xpathLiteral quotes s for use in an XPath 1.0 expression, which has no
// escape sequences.
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, `'`):
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
