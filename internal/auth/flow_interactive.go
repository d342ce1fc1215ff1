package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"idcloud-mcp/internal/logging"
)

// InteractiveFlow implements the authorization-code grant with PKCE through
// the system browser and a one-shot loopback redirect listener.
type InteractiveFlow struct {
	cfg       Config
	endpoints Endpoints
	client    *tokenClient
	logger    *slog.Logger

	// openURL is swapped out in tests so no browser actually launches.
	openURL func(string) error
}

// NewInteractiveFlow builds the interactive strategy.
func NewInteractiveFlow(cfg Config, hc *http.Client, logger *slog.Logger) *InteractiveFlow {
	return &InteractiveFlow{
		cfg:       cfg,
		endpoints: endpointsFor(cfg),
		client:    newTokenClient(hc),
		logger:    logging.WithComponent(logger, "interactive-flow"),
		openURL:   openBrowser,
	}
}

func (f *InteractiveFlow) Name() string { return StrategyInteractive }

// Acquire runs the browser round-trip and redeems the authorization code.
func (f *InteractiveFlow) Acquire(ctx context.Context, scopes []string) (*TokenRecord, error) {
	session, err := newFlowSession()
	if err != nil {
		return nil, err
	}
	defer session.destroy()

	listener, err := newRedirectListener(f.cfg.CallbackPort, f.cfg.TenantHost(), session.state, f.logger)
	if err != nil {
		return nil, err
	}

	authURL := f.buildAuthorizeURL(session, listener.RedirectURI(), scopes)

	f.logger.Info("opening browser for authorization")
	if err := f.openURL(authURL); err != nil {
		listener.Close()
		return nil, fmt.Errorf("opening browser: %w", err)
	}

	code, err := listener.Wait(ctx, f.cfg.FlowTimeout)
	if err != nil {
		return nil, err
	}

	return f.redeemCode(ctx, code, session.verifier, listener.RedirectURI())
}

func (f *InteractiveFlow) buildAuthorizeURL(session *flowSession, redirectURI string, scopes []string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", f.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", JoinScopes(scopes))
	q.Set("state", session.state)
	q.Set("code_challenge", session.challenge)
	q.Set("code_challenge_method", "S256")
	return f.endpoints.Authorize() + "?" + q.Encode()
}

func (f *InteractiveFlow) redeemCode(ctx context.Context, code, verifier, redirectURI string) (*TokenRecord, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", f.cfg.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", verifier)

	tok, err := f.client.Do(ctx, f.endpoints.Token(), form)
	if err != nil {
		return nil, fmt.Errorf("redeeming authorization code: %w", err)
	}

	f.logger.Info("access token obtained",
		slog.String(logging.KeyTenant, f.cfg.TenantHost()),
		slog.String("token", logging.SanitizeToken(tok.AccessToken)))
	return tok.toRecord(f.cfg.TenantHost(), time.Now()), nil
}
