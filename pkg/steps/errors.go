package steps

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/systemstart/receiptflow/pkg/collab"
)

// Kind classifies why a step operation failed.
type Kind string

const (
	// TransientUI covers elements that were not found or not yet visible.
	TransientUI Kind = "transient-ui"
	// Network covers connectivity problems and timeouts against the external system.
	Network Kind = "network"
	// DataIntegrity covers expected data that is missing or malformed.
	DataIntegrity Kind = "data-integrity"
	// Fatal covers broken preconditions; it aborts the whole cycle.
	Fatal Kind = "fatal"
)

// Retryable reports whether failures of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == TransientUI || k == Network
}

func (k Kind) String() string { return string(k) }

// Error attaches a Kind to an underlying error.
type Error struct {
	kind Kind
	err  error
}

// NewError wraps err with kind.
func NewError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: err}
}

// Errorf formats an error of the given kind. %w verbs are honoured.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// Classify maps any error returned by a step operation onto a Kind. Errors
// carrying an explicit Kind keep it; cancellation is always Fatal.
func Classify(err error) Kind {
	var stepErr *Error
	var netErr net.Error

	switch {
	case err == nil:
		return ""
	case errors.As(err, &stepErr):
		return stepErr.kind
	case errors.Is(err, context.Canceled):
		return Fatal
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, collab.ErrTimeout),
		errors.Is(err, collab.ErrUnavailable),
		errors.As(err, &netErr):
		return Network
	case errors.Is(err, collab.ErrEmpty):
		return DataIntegrity
	default:
		return TransientUI
	}
}

// IsTransientUI reports whether err classifies as TransientUI.
func IsTransientUI(err error) bool { return Classify(err) == TransientUI }

// IsNetwork reports whether err classifies as Network.
func IsNetwork(err error) bool { return Classify(err) == Network }

// IsDataIntegrity reports whether err classifies as DataIntegrity.
func IsDataIntegrity(err error) bool { return Classify(err) == DataIntegrity }

// IsFatal reports whether err classifies as Fatal.
func IsFatal(err error) bool { return Classify(err) == Fatal }
