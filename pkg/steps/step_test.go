package steps

import (
	"context"
	"strings"
	"testing"
)

func noop(context.Context, *PipelineContext) (Payload, error) { return nil, nil }

func TestPipelineValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Pipeline
		wantErr string
	}{
		{
			"valid",
			Pipeline{
				{Ordinal: 1, Name: "a", Run: noop, Produces: []string{"x"}},
				{Ordinal: 2, Name: "b", Run: noop, Requires: []string{"x"}},
			},
			"",
		},
		{"empty", Pipeline{}, "no steps"},
		{"missing name", Pipeline{{Ordinal: 1, Run: noop}}, "name is required"},
		{
			"duplicate name",
			Pipeline{{Ordinal: 1, Name: "a", Run: noop}, {Ordinal: 2, Name: "a", Run: noop}},
			"duplicate step name",
		},
		{"missing operation", Pipeline{{Ordinal: 1, Name: "a"}}, "operation is required"},
		{
			"ordinals not increasing",
			Pipeline{{Ordinal: 2, Name: "a", Run: noop}, {Ordinal: 2, Name: "b", Run: noop}},
			"does not follow",
		},
		{
			"requirement produced later",
			Pipeline{
				{Ordinal: 1, Name: "a", Run: noop, Requires: []string{"x"}},
				{Ordinal: 2, Name: "b", Run: noop, Produces: []string{"x"}},
			},
			"no earlier step produces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPipelineIndex(t *testing.T) {
	p := Pipeline{{Name: "a"}, {Name: "b"}}
	if p.Index("b") != 1 || p.Index("c") != -1 {
		t.Errorf("unexpected indexes: b=%d c=%d", p.Index("b"), p.Index("c"))
	}
}
