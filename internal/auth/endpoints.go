package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Endpoint paths under the tenant base URL. The platform publishes these at
// fixed locations per tenant, so discovery is optional.
const (
	authorizePath  = "/am/oauth2/authorize"
	tokenPath      = "/am/oauth2/access_token"
	devicePath     = "/am/oauth2/device/code"
	metadataPath   = "/am/oauth2/.well-known/oauth-authorization-server"
	idmQueryPath   = "/openidm/managed"
	serviceAccount = "service-account"
)

const (
	// Maximum size for metadata documents (1MB)
	maxMetadataSize = 1024 * 1024

	// HTTP timeout for metadata requests
	metadataRequestTimeout = 10 * time.Second
)

// ServerMetadata is the authorization server metadata document per RFC 8414,
// reduced to the endpoints this client uses.
type ServerMetadata struct {
	Issuer                      string `json:"issuer"`
	AuthorizationEndpoint       string `json:"authorization_endpoint"`
	TokenEndpoint               string `json:"token_endpoint"`
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
}

// Endpoints resolves concrete endpoint URLs for a tenant: the fixed
// per-tenant paths by default, or the discovered metadata when present.
type Endpoints struct {
	base string
	meta *ServerMetadata
}

// NewEndpoints builds the default endpoint set for the given tenant base URL.
func NewEndpoints(tenantURL string) Endpoints {
	return Endpoints{base: strings.TrimRight(tenantURL, "/")}
}

// endpointsFor resolves the endpoint set from config, honoring any
// discovered metadata.
func endpointsFor(cfg Config) Endpoints {
	e := NewEndpoints(cfg.TenantURL)
	e.meta = cfg.EndpointOverrides
	return e
}

// Authorize returns the authorization endpoint URL.
func (e Endpoints) Authorize() string {
	if e.meta != nil && e.meta.AuthorizationEndpoint != "" {
		return e.meta.AuthorizationEndpoint
	}
	return e.base + authorizePath
}

// Token returns the token endpoint URL. It serves the code, device,
// jwt-bearer and token-exchange grants alike.
func (e Endpoints) Token() string {
	if e.meta != nil && e.meta.TokenEndpoint != "" {
		return e.meta.TokenEndpoint
	}
	return e.base + tokenPath
}

// DeviceAuthorization returns the device authorization endpoint URL.
func (e Endpoints) DeviceAuthorization() string {
	if e.meta != nil && e.meta.DeviceAuthorizationEndpoint != "" {
		return e.meta.DeviceAuthorizationEndpoint
	}
	return e.base + devicePath
}

// IDMManaged returns the managed-object API base URL.
func (e Endpoints) IDMManaged() string { return e.base + idmQueryPath }

// FetchServerMetadata fetches the tenant's RFC 8414 authorization server
// metadata document. The response is size-limited and must be JSON.
func FetchServerMetadata(ctx context.Context, hc *http.Client, tenantURL string) (*ServerMetadata, error) {
	if hc == nil {
		hc = &http.Client{Timeout: metadataRequestTimeout}
	}

	metadataURL := strings.TrimRight(tenantURL, "/") + metadataPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching server metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	// Validate Content-Type
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("unexpected Content-Type: %s (expected application/json)", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("reading server metadata: %w", err)
	}

	var meta ServerMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decoding server metadata: %w", err)
	}
	if meta.TokenEndpoint == "" {
		return nil, fmt.Errorf("server metadata missing token_endpoint")
	}
	return &meta, nil
}
