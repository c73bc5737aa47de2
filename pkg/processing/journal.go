package processing

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Journal persists cycle results as they grow.
type Journal interface {
	Record(r CycleResult) error
}

// FileJournal writes one YAML snapshot per cycle into Dir, overwriting it
// after every step.
type FileJournal struct {
	Dir string
}

// Path returns the snapshot file of a cycle.
func (j FileJournal) Path(r CycleResult) string {
	name := fmt.Sprintf("%s-%02d-%s.yaml", r.StartedAt.UTC().Format("20060102T150405"), r.Cycle, r.CorrelationID)
	return filepath.Join(j.Dir, name)
}

func (j FileJournal) Record(r CycleResult) error {
	if err := os.MkdirAll(j.Dir, 0o750); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding cycle result: %w", err)
	}

	target := j.Path(r)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}

// LoadJournal reads a snapshot written by FileJournal.
func LoadJournal(filename string) (*CycleResult, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading journal file: %w", err)
	}

	var r CycleResult
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing journal file: %w", err)
	}
	return &r, nil
}
