package steps

import (
	"context"
	"fmt"
	"time"
)

type authenticateStep struct {
	deps Deps
}

func newAuthenticateStep(deps Deps) Definition {
	s := &authenticateStep{deps: deps}
	return Definition{
		Run:      s.Run,
		Retry:    DefaultRetryPolicy(),
		Produces: []string{FactAuthenticatedAt},
	}
}

func (s *authenticateStep) Run(ctx context.Context, pc *PipelineContext) (Payload, error) {
	if pc.Credentials.Identity == "" || pc.Credentials.Secret == "" {
		return nil, Errorf(Fatal, "credentials are incomplete")
	}
	session, err := browserOf(pc)
	if err != nil {
		return nil, err
	}

	cfg := s.deps.Config
	login := pageURL(cfg.ERP.BaseURL, cfg.ERP.LoginPath)
	if err := session.Navigate(ctx, login); err != nil {
		return nil, fmt.Errorf("opening login page: %w", err)
	}
	if err := session.Authenticate(ctx, pc.Credentials); err != nil {
		return nil, fmt.Errorf("signing in as %s: %w", pc.Credentials.Identity, err)
	}
	if err := awaitReady(ctx, session, cfg.Browser.ReadyTimeout); err != nil {
		return nil, fmt.Errorf("after sign-in: %w", err)
	}

	pc.logger().Info("signed in", "credentials", pc.Credentials)
	return Payload{FactAuthenticatedAt: s.deps.now().Format(time.RFC3339)}, nil
}
