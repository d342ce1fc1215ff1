package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idcloud-mcp/internal/logging"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// deviceAuthResponse is the device authorization endpoint's JSON body
// (RFC 8628 section 3.2).
type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// DeviceFlow implements the device authorization grant for hosts without a
// local browser. The flow is PKCE-augmented: the challenge goes with the
// device authorization request and the verifier with every token poll, so a
// leaked device code alone cannot be redeemed.
type DeviceFlow struct {
	cfg       Config
	endpoints Endpoints
	client    *tokenClient
	http      *http.Client
	prompter  Prompter
	logger    *slog.Logger

	// pollInterval, when set, overrides the server-suggested interval.
	// Tests use it to poll fast.
	pollInterval time.Duration
}

// NewDeviceFlow builds the device strategy.
func NewDeviceFlow(cfg Config, hc *http.Client, prompter Prompter, logger *slog.Logger) *DeviceFlow {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeviceFlow{
		cfg:       cfg,
		endpoints: endpointsFor(cfg),
		client:    newTokenClient(hc),
		http:      hc,
		prompter:  prompter,
		logger:    logging.WithComponent(logger, "device-flow"),
	}
}

func (f *DeviceFlow) Name() string { return StrategyDevice }

// Acquire requests a device code, asks the user to complete verification in
// any browser, then polls the token endpoint until the grant resolves or
// the device code's validity window elapses.
func (f *DeviceFlow) Acquire(ctx context.Context, scopes []string) (*TokenRecord, error) {
	session, err := newFlowSession()
	if err != nil {
		return nil, err
	}
	defer session.destroy()

	auth, deadline, err := f.requestDeviceCode(ctx, session.challenge, scopes)
	if err != nil {
		return nil, err
	}

	uri := auth.VerificationURIComplete
	if uri == "" {
		uri = auth.VerificationURI
	}
	ok, err := f.prompter.ConfirmDeviceLogin(ctx, uri, auth.UserCode)
	if err != nil {
		return nil, fmt.Errorf("device login confirmation: %w", err)
	}
	if !ok {
		return nil, ErrUserCancelled
	}

	return f.poll(ctx, auth, session.verifier, deadline)
}

// requestDeviceCode obtains a device code and returns it together with the
// code's expiry deadline, anchored at issuance. The deadline is computed here
// rather than at poll start so that time spent waiting for the user's
// confirmation counts against the code's validity window.
func (f *DeviceFlow) requestDeviceCode(ctx context.Context, challenge string, scopes []string) (*deviceAuthResponse, time.Time, error) {
	form := url.Values{}
	form.Set("client_id", f.cfg.ClientID)
	form.Set("scope", JoinScopes(scopes))
	form.Set("code_challenge", challenge)
	form.Set("code_challenge_method", "S256")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoints.DeviceAuthorization(),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("building device authorization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("device authorization request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	issuedAt := time.Now()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading device authorization response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		epErr := &EndpointError{Status: resp.StatusCode, Body: string(body)}
		var oauthErr tokenErrorBody
		if json.Unmarshal(body, &oauthErr) == nil {
			epErr.Code = oauthErr.Error
			epErr.Description = oauthErr.ErrorDescription
		}
		return nil, time.Time{}, epErr
	}

	var auth deviceAuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding device authorization response: %w", err)
	}
	if auth.DeviceCode == "" || auth.UserCode == "" {
		return nil, time.Time{}, fmt.Errorf("device authorization response incomplete")
	}
	return &auth, issuedAt.Add(time.Duration(auth.ExpiresIn) * time.Second), nil
}

// poll redeems the device code, retrying on authorization_pending at the
// server-given interval until the code's validity deadline passes.
func (f *DeviceFlow) poll(ctx context.Context, auth *deviceAuthResponse, verifier string, deadline time.Time) (*TokenRecord, error) {
	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if f.pollInterval > 0 {
		interval = f.pollInterval
	}

	form := url.Values{}
	form.Set("grant_type", deviceGrantType)
	form.Set("client_id", f.cfg.ClientID)
	form.Set("device_code", auth.DeviceCode)
	form.Set("code_verifier", verifier)

	for {
		if time.Now().After(deadline) {
			return nil, ErrDeviceCodeExpired
		}

		tok, err := f.client.Do(ctx, f.endpoints.Token(), form)
		if err == nil {
			f.logger.Info("access token obtained",
				slog.String(logging.KeyTenant, f.cfg.TenantHost()),
				slog.String("token", logging.SanitizeToken(tok.AccessToken)))
			f.prompter.NotifyLoginComplete(f.Name())
			return tok.toRecord(f.cfg.TenantHost(), time.Now()), nil
		}

		var epErr *EndpointError
		if !errors.As(err, &epErr) {
			return nil, err
		}
		switch epErr.Code {
		case "authorization_pending":
			// keep waiting
		case "slow_down":
			interval += 5 * time.Second
		case "expired_token":
			return nil, ErrDeviceCodeExpired
		default:
			return nil, fmt.Errorf("device grant rejected: %w", epErr)
		}

		f.logger.Debug("device grant pending", slog.Duration("interval", interval))
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
