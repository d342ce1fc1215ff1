package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"idcloud-mcp/internal/logging"
)

// RFC 8693 token exchange parameter values.
const (
	tokenExchangeGrantType = "urn:ietf:params:oauth:grant-type:token-exchange"
	accessTokenType        = "urn:ietf:params:oauth:token-type:access_token"
)

// TokenExchanger narrows a primary token to a smaller scope set via
// RFC 8693 token exchange. The exchanged token inherits the primary's
// identity but carries only the requested scopes.
type TokenExchanger struct {
	cfg       Config
	endpoints Endpoints
	client    *tokenClient
	logger    *slog.Logger
}

// NewTokenExchanger builds an exchanger for the tenant.
func NewTokenExchanger(cfg Config, hc *http.Client, logger *slog.Logger) *TokenExchanger {
	return &TokenExchanger{
		cfg:       cfg,
		endpoints: endpointsFor(cfg),
		client:    newTokenClient(hc),
		logger:    logging.WithComponent(logger, "exchange"),
	}
}

// Exchange trades the primary token for one scoped down to scopes. A 401
// from the endpoint means the primary token is no longer accepted; the error
// then matches ErrAuthExpired so the caller can re-authenticate.
func (x *TokenExchanger) Exchange(ctx context.Context, primary *TokenRecord, scopes []string) (*TokenRecord, error) {
	form := url.Values{}
	form.Set("grant_type", tokenExchangeGrantType)
	form.Set("client_id", x.exchangeClientID())
	form.Set("subject_token", primary.AccessToken)
	form.Set("subject_token_type", accessTokenType)
	form.Set("requested_token_type", accessTokenType)
	form.Set("scope", JoinScopes(scopes))

	tok, err := x.client.Do(ctx, x.endpoints.Token(), form)
	if err != nil {
		var epErr *EndpointError
		if errors.As(err, &epErr) && epErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrAuthExpired, epErr)
		}
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	x.logger.Debug("token exchanged",
		logging.ScopeHash(ScopeKey(scopes)),
		slog.String("token", logging.SanitizeToken(tok.AccessToken)))
	return tok.toRecord(x.cfg.TenantHost(), time.Now()), nil
}

// exchangeClientID picks the client the exchange request is made as. The
// service-account strategy uses the platform's fixed client; the user-facing
// strategies use the registered OAuth client.
func (x *TokenExchanger) exchangeClientID() string {
	if x.cfg.Strategy == StrategyServiceAccount {
		return serviceAccount
	}
	return x.cfg.ClientID
}
