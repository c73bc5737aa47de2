package steps

import (
	"context"
	"errors"
	"fmt"
)

type transformStep struct {
	deps Deps
}

func newTransformStep(deps Deps) Definition {
	s := &transformStep{deps: deps}
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 2
	return Definition{
		Run:      s.Run,
		Retry:    policy,
		Requires: []string{FactDownloadedFile},
		Produces: []string{FactTransformedFile},
	}
}

// Run hands the downloaded file to the external transform macro. A macro that
// runs but fails means the data is unusable; only timeouts are retried.
func (s *transformStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	path := pc.String(FactDownloadedFile)

	if err := s.deps.Workbook.RunTransform(ctx, path); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		var stepErr *Error
		if errors.As(err, &stepErr) {
			return nil, err
		}
		return nil, NewError(DataIntegrity, fmt.Errorf("transforming %s: %w", path, err))
	}

	return Payload{FactTransformedFile: path}, nil
}
