package processing

import "log/slog"

// NoStep marks an absent step index in a Progress report.
const NoStep = -1

// Progress is one transition of a cycle: the step about to run, the last
// step that completed, and the error that ended the cycle if any.
type Progress struct {
	Cycle     int
	Current   int
	Completed int
	Err       string
}

// Reporter observes cycle progress.
type Reporter interface {
	OnProgress(p Progress)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(p Progress)

func (f ReporterFunc) OnProgress(p Progress) { f(p) }

// MultiReporter fans progress out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) OnProgress(p Progress) {
	for _, r := range m {
		if r != nil {
			r.OnProgress(p)
		}
	}
}

// LogReporter writes progress to slog.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) OnProgress(p Progress) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	if p.Err != "" {
		log.Error("cycle progress", "cycle", p.Cycle, "current", p.Current, "completed", p.Completed, "error", p.Err)
		return
	}
	log.Info("cycle progress", "cycle", p.Cycle, "current", p.Current, "completed", p.Completed)
}

type nopReporter struct{}

func (nopReporter) OnProgress(Progress) {}
