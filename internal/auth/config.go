package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Strategy names accepted in configuration.
const (
	StrategyInteractive    = "interactive"
	StrategyDevice         = "device"
	StrategyServiceAccount = "service-account"
)

// Store backend names accepted in configuration.
const (
	StoreFile    = "file"
	StoreKeyring = "keyring"
	StoreMemory  = "memory"
)

// Config carries everything the auth service needs to talk to a tenant.
type Config struct {
	// TenantURL is the base URL of the tenant, e.g.
	// "https://openam-example.forgeblocks.com". Must be https.
	TenantURL string

	// ClientID is the OAuth client registered for this tool. The
	// service-account strategy ignores it and uses the platform's fixed
	// service-account client.
	ClientID string

	// Strategy selects the credential strategy: interactive, device or
	// service-account.
	Strategy string

	// Scopes requested for the primary token. Scoped tokens are later
	// narrowed from this set by exchange.
	Scopes []string

	// Store selects the token store backend: file, keyring or memory.
	Store string

	// StorePath is the on-disk location for the file backend. Empty means
	// the default under the user's home directory.
	StorePath string

	// ServiceAccountID and ServiceAccountKeyPath configure the
	// service-account strategy: the account identifier and the path to its
	// RSA private key in PEM form.
	ServiceAccountID      string
	ServiceAccountKeyPath string

	// CallbackPort fixes the loopback redirect listener port. Zero lets the
	// OS pick a free port.
	CallbackPort int

	// DiscoverEndpoints fetches the tenant's RFC 8414 metadata document at
	// startup instead of assuming the platform's fixed endpoint paths.
	DiscoverEndpoints bool

	// EndpointOverrides carries discovered (or injected) endpoint URLs.
	// Nil means the fixed per-tenant paths are used.
	EndpointOverrides *ServerMetadata

	// FlowTimeout bounds how long an interactive or device flow may wait
	// for the user. Zero means the default of five minutes.
	FlowTimeout time.Duration

	// AllowCachedTokenOnFirstUse skips the forced fresh authentication on
	// the first call of a session and trusts a stored token if it is still
	// usable. Off by default.
	AllowCachedTokenOnFirstUse bool

	// Verbose enables debug logging.
	Verbose bool
}

// WithDefaults returns a copy of the config with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyInteractive
	}
	if c.Store == "" {
		c.Store = StoreFile
	}
	if c.FlowTimeout == 0 {
		c.FlowTimeout = 5 * time.Minute
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"fr:idm:*"}
	}
	return c
}

// Validate checks the config for problems that would otherwise surface as
// confusing mid-flow failures.
func (c Config) Validate() error {
	if c.TenantURL == "" {
		return fmt.Errorf("tenant URL is required")
	}
	u, err := url.Parse(c.TenantURL)
	if err != nil {
		return fmt.Errorf("invalid tenant URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("tenant URL must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("tenant URL must include a host")
	}

	switch c.Strategy {
	case StrategyInteractive, StrategyDevice:
		if c.ClientID == "" {
			return fmt.Errorf("client ID is required for the %s strategy", c.Strategy)
		}
	case StrategyServiceAccount:
		if c.ServiceAccountID == "" {
			return fmt.Errorf("service account ID is required for the service-account strategy")
		}
		if c.ServiceAccountKeyPath == "" {
			return fmt.Errorf("service account key path is required for the service-account strategy")
		}
	default:
		return fmt.Errorf("unknown strategy %q (want %s, %s or %s)",
			c.Strategy, StrategyInteractive, StrategyDevice, StrategyServiceAccount)
	}

	switch c.Store {
	case StoreFile, StoreKeyring, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)",
			c.Store, StoreFile, StoreKeyring, StoreMemory)
	}

	if c.CallbackPort < 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("callback port %d out of range", c.CallbackPort)
	}
	return nil
}

// TenantHost returns the lowercase hostname of the tenant URL. Used both as
// the token record's tenant identifier and for redirect origin checks.
func (c Config) TenantHost() string {
	u, err := url.Parse(c.TenantURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
