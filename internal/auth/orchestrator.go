package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"idcloud-mcp/internal/logging"
)

// primaryKey is the singleflight key for primary-token acquisition. Scoped
// exchanges use "scoped:" + the scope hash.
const primaryKey = "primary"

// Service orchestrates the credential strategy, token store and exchanger
// behind one call: GetScopedToken. It is safe for concurrent use.
type Service struct {
	cfg       Config
	strategy  CredentialStrategy
	store     TokenStore
	exchanger *TokenExchanger
	logger    *slog.Logger

	group singleflight.Group

	mu sync.Mutex
	// sessionAuthenticated flips to true after the first successful primary
	// acquisition of this process. Until then a stored token is distrusted
	// unless the config explicitly allows it.
	sessionAuthenticated bool
}

// NewService wires a Service from config. The prompter is only consulted by
// the device strategy; pass a LogPrompter for headless operation.
func NewService(cfg Config, hc *http.Client, prompter Prompter, logger *slog.Logger) (*Service, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}

	if cfg.DiscoverEndpoints && cfg.EndpointOverrides == nil {
		ctx, cancel := context.WithTimeout(context.Background(), metadataRequestTimeout)
		defer cancel()
		meta, err := FetchServerMetadata(ctx, hc, cfg.TenantURL)
		if err != nil {
			return nil, fmt.Errorf("endpoint discovery failed: %w", err)
		}
		cfg.EndpointOverrides = meta
	}

	store, err := NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	var strategy CredentialStrategy
	switch cfg.Strategy {
	case StrategyInteractive:
		strategy = NewInteractiveFlow(cfg, hc, logger)
	case StrategyDevice:
		strategy = NewDeviceFlow(cfg, hc, prompter, logger)
	case StrategyServiceAccount:
		strategy = NewServiceAccountFlow(cfg, hc, logger)
	}

	return &Service{
		cfg:       cfg,
		strategy:  strategy,
		store:     store,
		exchanger: NewTokenExchanger(cfg, hc, logger),
		logger:    logging.WithComponent(logger, "auth"),
	}, nil
}

// NewServiceWith wires a Service from pre-built parts. Tests use it to
// substitute strategies and stores.
func NewServiceWith(cfg Config, strategy CredentialStrategy, store TokenStore, exchanger *TokenExchanger, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg.WithDefaults(),
		strategy:  strategy,
		store:     store,
		exchanger: exchanger,
		logger:    logging.WithComponent(logger, "auth"),
	}
}

// GetScopedToken returns an access token carrying exactly the requested
// scopes, acquiring or refreshing the primary credential as needed. An empty
// scope set fails immediately. If the exchange endpoint rejects the primary
// token with 401, the service re-authenticates once and retries; a second
// rejection is terminal.
func (s *Service) GetScopedToken(ctx context.Context, scopes []string) (*TokenRecord, error) {
	scopes = CanonicalScopes(scopes)
	if len(scopes) == 0 {
		return nil, ErrNoScopes
	}

	key := "scoped:" + ScopeKey(scopes)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.getScopedToken(ctx, scopes)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenRecord), nil
}

func (s *Service) getScopedToken(ctx context.Context, scopes []string) (*TokenRecord, error) {
	primary, err := s.primaryToken(ctx, false)
	if err != nil {
		return nil, err
	}

	scoped, err := s.exchanger.Exchange(ctx, primary, scopes)
	if err == nil {
		return scoped, nil
	}
	if !errors.Is(err, ErrAuthExpired) {
		return nil, err
	}

	s.logger.Info("primary token rejected, re-authenticating once")
	primary, err = s.primaryToken(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("re-authentication failed: %w", err)
	}

	scoped, err = s.exchanger.Exchange(ctx, primary, scopes)
	if err != nil {
		if errors.Is(err, ErrAuthExpired) {
			// Rejected again right after a fresh login: do not loop, the
			// wrapped error no longer matches ErrAuthExpired.
			return nil, fmt.Errorf("exchange rejected a freshly acquired token: %v", err)
		}
		return nil, err
	}
	return scoped, nil
}

// primaryToken returns a usable primary credential, acquiring a fresh one
// when the cache misses, the cached record is stale or belongs to another
// tenant, this is the session's first use (unless configured otherwise), or
// force is set. Concurrent acquisitions collapse to one flow.
func (s *Service) primaryToken(ctx context.Context, force bool) (*TokenRecord, error) {
	v, err, _ := s.group.Do(primaryKey, func() (interface{}, error) {
		if force {
			// A forced run must reach the authorization server. The store is
			// bypassed below; a strategy-internal cache must be dropped too,
			// or it would serve back the token that was just rejected.
			if inv, ok := s.strategy.(CacheInvalidator); ok {
				inv.Invalidate(s.cfg.Scopes)
			}
		} else {
			if rec := s.cachedPrimary(); rec != nil {
				return rec, nil
			}
		}
		return s.acquirePrimary(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenRecord), nil
}

// cachedPrimary returns the stored record when it is trustworthy: usable for
// this tenant and either the session has already authenticated once or the
// config allows trusting a stored token on first use.
func (s *Service) cachedPrimary() *TokenRecord {
	s.mu.Lock()
	trusted := s.sessionAuthenticated || s.cfg.AllowCachedTokenOnFirstUse
	s.mu.Unlock()
	if !trusted {
		return nil
	}

	rec, err := s.store.Get()
	if err != nil || rec == nil {
		return nil
	}
	if !rec.Usable(s.cfg.TenantHost(), time.Now()) {
		return nil
	}
	return rec
}

func (s *Service) acquirePrimary(ctx context.Context) (*TokenRecord, error) {
	s.logger.Info("acquiring primary token", slog.String("strategy", s.strategy.Name()))
	rec, err := s.strategy.Acquire(ctx, s.cfg.Scopes)
	if err != nil {
		return nil, fmt.Errorf("credential acquisition failed: %w", err)
	}

	if err := s.store.Set(rec); err != nil {
		return nil, fmt.Errorf("persisting primary token: %w", err)
	}

	s.mu.Lock()
	s.sessionAuthenticated = true
	s.mu.Unlock()

	s.logger.Info("primary token acquired",
		slog.String(logging.KeyTenant, s.cfg.TenantHost()),
		slog.Time("expires_at", rec.ExpiresAt))
	return rec, nil
}

// Login forces a fresh primary acquisition regardless of cache state.
func (s *Service) Login(ctx context.Context) (*TokenRecord, error) {
	return s.primaryToken(ctx, true)
}

// Logout deletes the stored credential and resets the session flag.
func (s *Service) Logout() error {
	s.mu.Lock()
	s.sessionAuthenticated = false
	s.mu.Unlock()
	return s.store.Delete()
}

// Status describes the current credential state for display.
type Status struct {
	Tenant        string    `json:"tenant"`
	Strategy      string    `json:"strategy"`
	Authenticated bool      `json:"authenticated"`
	TokenPresent  bool      `json:"tokenPresent"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

// Status reports the session and store state without any network call.
func (s *Service) Status() Status {
	s.mu.Lock()
	authed := s.sessionAuthenticated
	s.mu.Unlock()

	st := Status{
		Tenant:        s.cfg.TenantHost(),
		Strategy:      s.strategy.Name(),
		Authenticated: authed,
	}
	if rec, err := s.store.Get(); err == nil && rec != nil {
		st.TokenPresent = rec.Usable(s.cfg.TenantHost(), time.Now())
		st.ExpiresAt = rec.ExpiresAt
	}
	return st
}
