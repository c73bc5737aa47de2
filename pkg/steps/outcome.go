package steps

import (
	"maps"
	"time"
)

// Status is the terminal state of one step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome is the immutable record of one executed step.
type Outcome struct {
	Ordinal  int           `yaml:"ordinal"`
	Step     string        `yaml:"step"`
	Status   Status        `yaml:"status"`
	Kind     Kind          `yaml:"kind,omitempty"`
	Message  string        `yaml:"message,omitempty"`
	Attempts int           `yaml:"attempts"`
	Duration time.Duration `yaml:"duration"`
	Payload  Payload       `yaml:"payload,omitempty"`
}

// Succeeded reports whether the step completed.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Failed reports whether the step failed.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// Skipped reports whether the step was deliberately not run.
func (o Outcome) Skipped() bool { return o.Status == StatusSkipped }

func succeeded(def Definition, payload Payload, attempts int, d time.Duration) Outcome {
	return Outcome{
		Ordinal:  def.Ordinal,
		Step:     def.Name,
		Status:   StatusSuccess,
		Attempts: attempts,
		Duration: d,
		Payload:  maps.Clone(payload),
	}
}

func failed(def Definition, kind Kind, message string, attempts int, d time.Duration) Outcome {
	return Outcome{
		Ordinal:  def.Ordinal,
		Step:     def.Name,
		Status:   StatusFailed,
		Kind:     kind,
		Message:  message,
		Attempts: attempts,
		Duration: d,
	}
}

func skipped(def Definition, reason string) Outcome {
	return Outcome{
		Ordinal: def.Ordinal,
		Step:    def.Name,
		Status:  StatusSkipped,
		Message: reason,
	}
}

// NotStarted records a step that could not begin, e.g. because the run was
// cancelled or its browser session could not be opened.
func NotStarted(def Definition, err error) Outcome {
	return failed(def, Classify(err), err.Error(), 0, 0)
}
