package steps

import (
	"context"
	"fmt"
)

// Payload carries the facts a step extracted; the executor merges it into the
// pipeline context when the step succeeds.
type Payload map[string]any

// Operation is the work of one step. It must not mutate pc; results are
// returned as a Payload.
type Operation func(ctx context.Context, pc *PipelineContext) (Payload, error)

// SkipFunc decides whether a step is skipped and why.
type SkipFunc func(pc *PipelineContext) (bool, string)

// Definition describes one named pipeline step.
type Definition struct {
	Ordinal int
	Name    string
	Run     Operation
	Retry   RetryPolicy

	// Requires lists fact keys an earlier step must have produced.
	Requires []string
	// Produces lists fact keys this step's payload provides.
	Produces []string

	// Critical steps halt the cycle when they fail.
	Critical bool
	Skip     SkipFunc

	// RunOnce steps submit data to a remote system and are never re-invoked,
	// whatever a configured override asks for.
	RunOnce bool
}

func (d Definition) String() string {
	return fmt.Sprintf("%d:%s", d.Ordinal, d.Name)
}

// Pipeline is the ordered list of steps run for every cycle.
type Pipeline []Definition

// Validate checks ordering, naming and declared data dependencies.
func (p Pipeline) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("pipeline has no steps")
	}

	names := make(map[string]int)
	produced := make(map[string]string)

	for i, def := range p {
		if def.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if prev, exists := names[def.Name]; exists {
			return fmt.Errorf("step %d: duplicate step name %q (first defined at step %d)", i, def.Name, prev)
		}
		names[def.Name] = i

		if def.Run == nil {
			return fmt.Errorf("step %q: operation is required", def.Name)
		}
		if i > 0 && def.Ordinal <= p[i-1].Ordinal {
			return fmt.Errorf("step %q: ordinal %d does not follow %d", def.Name, def.Ordinal, p[i-1].Ordinal)
		}

		for _, key := range def.Requires {
			if _, ok := produced[key]; !ok {
				return fmt.Errorf("step %q: requires %q which no earlier step produces", def.Name, key)
			}
		}
		for _, key := range def.Produces {
			produced[key] = def.Name
		}
	}

	return nil
}

// Index returns the position of the named step, or -1.
func (p Pipeline) Index(name string) int {
	for i, def := range p {
		if def.Name == name {
			return i
		}
	}
	return -1
}
