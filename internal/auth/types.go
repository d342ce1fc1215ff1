package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// expirySafetyMargin is subtracted from a record's lifetime when checking
// usability. This accounts for clock skew and the latency of the request
// the token is about to authorize.
const expirySafetyMargin = 30 * time.Second

// TokenRecord is the persisted form of the primary credential.
type TokenRecord struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string `json:"accessToken"`

	// ExpiresAt is the absolute expiry timestamp reported by the server.
	ExpiresAt time.Time `json:"expiresAt"`

	// Tenant is the hostname of the tenant the token was issued for.
	// A record from a different tenant is never usable.
	Tenant string `json:"tenantIdentifier"`
}

// Usable reports whether the record can still authorize requests for the
// given tenant at the given instant, leaving the safety margin before expiry.
func (r *TokenRecord) Usable(tenant string, now time.Time) bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	if r.Tenant != tenant {
		return false
	}
	return now.Before(r.ExpiresAt.Add(-expirySafetyMargin))
}

// ToOAuth2Token converts the record for use with golang.org/x/oauth2
// consumers (token sources, HTTP clients).
func (r *TokenRecord) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: r.AccessToken,
		TokenType:   "Bearer",
		Expiry:      r.ExpiresAt,
	}
}

// CredentialStrategy obtains a primary token from the authorization server.
// Exactly one implementation is selected at startup from configuration.
type CredentialStrategy interface {
	// Name identifies the strategy in logs and status output.
	Name() string

	// Acquire runs the full credential flow and returns a fresh record.
	// It blocks until the flow completes, fails, or ctx is cancelled.
	Acquire(ctx context.Context, scopes []string) (*TokenRecord, error)
}

// CacheInvalidator is implemented by strategies that keep a token cache of
// their own. The orchestrator invalidates before a forced re-acquisition so
// a strategy can never hand back the token that was just rejected.
type CacheInvalidator interface {
	Invalidate(scopes []string)
}

// TokenStore persists the primary credential between calls (and, for the
// durable backends, between process runs).
//
// Get returns (nil, nil) when no record exists; backends degrade read
// failures to a cache miss so a broken store never blocks authentication.
// A failed Set always surfaces, since the flow must know persistence failed.
type TokenStore interface {
	Get() (*TokenRecord, error)
	Set(record *TokenRecord) error
	Delete() error
}
