package steps

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/systemstart/receiptflow/pkg/collab"
)

// Fact keys shared between the built-in steps.
const (
	FactAuthenticatedAt    = "authenticatedAt"
	FactRecordsLocated     = "recordsLocated"
	FactDownloadedFile     = "downloadedFile"
	FactTransformedFile    = "transformedFile"
	FactFiledKeys          = "filedKeys"
	FactFailedKeys         = "failedKeys"
	FactUnverifiedKeys     = "unverifiedKeys"
	FactLastProcessedCode  = "lastProcessedCode"
	FactLastProcessedValue = "lastProcessedValue"
	FactLastProcessedDate  = "lastProcessedDate"
	FactDueDate            = "dueDate"
	FactApprovalWindow     = "approvalWindow"
	FactApprovalTitle      = "approvalTitle"
)

// DateRange is the inclusive filter range for one cycle.
type DateRange struct {
	From time.Time
	To   time.Time
}

// PipelineContext is the state of one cycle. It is created fresh for every
// cycle and never shared between cycles.
type PipelineContext struct {
	Cycle         int
	Parameter     string
	Credentials   collab.Credentials
	CorrelationID string
	DateRange     DateRange
	Session       collab.BrowserSession
	Logger        *slog.Logger

	facts map[string]any
}

// NewPipelineContext seeds a context for cycle with a new correlation id.
func NewPipelineContext(cycle int, parameter string, creds collab.Credentials, dr DateRange, session collab.BrowserSession) *PipelineContext {
	id := uuid.NewString()
	return &PipelineContext{
		Cycle:         cycle,
		Parameter:     parameter,
		Credentials:   creds,
		CorrelationID: id,
		DateRange:     dr,
		Session:       session,
		Logger:        slog.Default().With("cycle", cycle, "parameter", parameter, "correlationId", id),
		facts:         make(map[string]any),
	}
}

// Has reports whether key has been produced.
func (pc *PipelineContext) Has(key string) bool {
	_, ok := pc.facts[key]
	return ok
}

// Fact returns the raw value stored under key.
func (pc *PipelineContext) Fact(key string) (any, bool) {
	v, ok := pc.facts[key]
	return v, ok
}

// String returns the fact under key formatted as a string, or "".
func (pc *PipelineContext) String(key string) string {
	v, ok := pc.facts[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a string slice fact, or nil.
func (pc *PipelineContext) Strings(key string) []string {
	v, _ := pc.facts[key].([]string)
	return slices.Clone(v)
}

// Facts returns a copy of every fact.
func (pc *PipelineContext) Facts() map[string]any {
	return maps.Clone(pc.facts)
}

func (pc *PipelineContext) logger() *slog.Logger {
	if pc.Logger == nil {
		return slog.Default()
	}
	return pc.Logger
}

// view returns a copy handed to an operation so a failing attempt cannot
// leave partial facts behind.
func (pc *PipelineContext) view() *PipelineContext {
	cp := *pc
	cp.facts = maps.Clone(pc.facts)
	return &cp
}

func (pc *PipelineContext) merge(p Payload) {
	maps.Copy(pc.facts, p)
}
