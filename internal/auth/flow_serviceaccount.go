package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"idcloud-mcp/internal/logging"
)

const (
	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// assertionLifetime is how far in the future the signed assertion's exp
	// claim sits. The platform rejects assertions living longer than this.
	assertionLifetime = 15 * time.Minute
)

// ServiceAccountFlow implements the JWT-bearer grant for non-interactive
// use. It signs a short-lived RS256 assertion with the service account's
// private key and trades it for an access token.
//
// Because the grant never involves a user, tokens are cheap to mint per
// scope set; the flow keeps its own in-memory cache keyed by scope hash so
// repeated requests for the same scopes reuse one token until near expiry.
type ServiceAccountFlow struct {
	cfg       Config
	endpoints Endpoints
	client    *tokenClient
	logger    *slog.Logger

	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error

	mu    sync.Mutex
	cache map[string]*TokenRecord

	group singleflight.Group
}

// NewServiceAccountFlow builds the service-account strategy.
func NewServiceAccountFlow(cfg Config, hc *http.Client, logger *slog.Logger) *ServiceAccountFlow {
	return &ServiceAccountFlow{
		cfg:       cfg,
		endpoints: endpointsFor(cfg),
		client:    newTokenClient(hc),
		logger:    logging.WithComponent(logger, "service-account-flow"),
		cache:     make(map[string]*TokenRecord),
	}
}

func (f *ServiceAccountFlow) Name() string { return StrategyServiceAccount }

// Acquire returns a token for the scope set, minting one only when the
// cached token for that set is missing or within the expiry margin.
// Concurrent callers asking for the same scope set share one mint.
func (f *ServiceAccountFlow) Acquire(ctx context.Context, scopes []string) (*TokenRecord, error) {
	key := ScopeKey(scopes)

	f.mu.Lock()
	if rec, ok := f.cache[key]; ok && rec.Usable(f.cfg.TenantHost(), time.Now()) {
		f.mu.Unlock()
		return rec, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		// Re-check under the group: a concurrent winner may have filled the
		// cache while this caller queued.
		f.mu.Lock()
		if rec, ok := f.cache[key]; ok && rec.Usable(f.cfg.TenantHost(), time.Now()) {
			f.mu.Unlock()
			return rec, nil
		}
		f.mu.Unlock()

		rec, err := f.mint(ctx, scopes)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cache[key] = rec
		f.mu.Unlock()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenRecord), nil
}

// Invalidate drops the cached token for a scope set, forcing the next
// Acquire to mint fresh. The orchestrator calls it before a forced
// re-acquisition; it implements CacheInvalidator.
func (f *ServiceAccountFlow) Invalidate(scopes []string) {
	f.mu.Lock()
	delete(f.cache, ScopeKey(scopes))
	f.mu.Unlock()
}

func (f *ServiceAccountFlow) mint(ctx context.Context, scopes []string) (*TokenRecord, error) {
	assertion, err := f.signAssertion()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("client_id", serviceAccount)
	form.Set("assertion", assertion)
	form.Set("scope", JoinScopes(scopes))

	tok, err := f.client.Do(ctx, f.endpoints.Token(), form)
	if err != nil {
		return nil, fmt.Errorf("jwt-bearer grant failed: %w", err)
	}

	f.logger.Info("access token minted",
		slog.String(logging.KeyTenant, f.cfg.TenantHost()),
		logging.ScopeHash(ScopeKey(scopes)),
		slog.String("token", logging.SanitizeToken(tok.AccessToken)))
	return tok.toRecord(f.cfg.TenantHost(), time.Now()), nil
}

// signAssertion builds and signs the RS256 bearer assertion: issuer and
// subject are the service account ID, audience is the token endpoint, and
// every assertion carries a fresh random jti.
func (f *ServiceAccountFlow) signAssertion() (string, error) {
	key, err := f.privateKey()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    f.cfg.ServiceAccountID,
		Subject:   f.cfg.ServiceAccountID,
		Audience:  jwt.ClaimStrings{f.endpoints.Token()},
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing bearer assertion: %w", err)
	}
	return signed, nil
}

// privateKey loads and parses the PEM key once per process.
func (f *ServiceAccountFlow) privateKey() (*rsa.PrivateKey, error) {
	f.keyOnce.Do(func() {
		pemBytes, err := os.ReadFile(f.cfg.ServiceAccountKeyPath)
		if err != nil {
			f.keyErr = fmt.Errorf("reading service account key: %w", err)
			return
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			f.keyErr = fmt.Errorf("parsing service account key: %w", err)
			return
		}
		f.key = key
	})
	return f.key, f.keyErr
}
