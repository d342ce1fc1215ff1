// Package idm is a minimal client for the platform's managed-object REST API.
// Every request fetches a token scoped to just what the operation needs.
package idm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/logging"
)

// maxResponseSize bounds response bodies read into memory.
const maxResponseSize = 8 << 20

// queryScope is the scope requested for read queries. Narrower than the
// primary token's grant; write operations would request their own scopes.
const queryScope = "fr:idm:*"

// Client calls the managed-object API with freshly scoped tokens.
type Client struct {
	endpoints auth.Endpoints
	authSvc   *auth.Service
	http      *http.Client
	logger    *slog.Logger
}

// New builds a client for the tenant the auth service is bound to.
func New(tenantURL string, authSvc *auth.Service, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoints: auth.NewEndpoints(tenantURL),
		authSvc:   authSvc,
		http:      hc,
		logger:    logging.WithComponent(logger, "idm"),
	}
}

// QueryResult is the managed-object query envelope.
type QueryResult struct {
	Result      []map[string]interface{} `json:"result"`
	ResultCount int                      `json:"resultCount"`
}

// Query runs a filtered query against a managed object type, e.g.
// Query(ctx, "alpha_user", `userName sw "j"`).
func (c *Client) Query(ctx context.Context, objectType, filter string) (*QueryResult, error) {
	if objectType == "" {
		return nil, fmt.Errorf("object type is required")
	}

	token, err := c.authSvc.GetScopedToken(ctx, []string{queryScope})
	if err != nil {
		return nil, fmt.Errorf("getting scoped token: %w", err)
	}

	q := url.Values{}
	if filter == "" {
		filter = "true"
	}
	q.Set("_queryFilter", filter)

	reqURL := c.endpoints.IDMManaged() + "/" + url.PathEscape(objectType) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query returned status %d: %s", resp.StatusCode, string(body))
	}

	var result QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}

	c.logger.Debug("query complete",
		slog.String("object_type", objectType),
		slog.Int("results", result.ResultCount))
	return &result, nil
}

// Get fetches one managed object by ID.
func (c *Client) Get(ctx context.Context, objectType, id string) (map[string]interface{}, error) {
	if objectType == "" || id == "" {
		return nil, fmt.Errorf("object type and id are required")
	}

	token, err := c.authSvc.GetScopedToken(ctx, []string{queryScope})
	if err != nil {
		return nil, fmt.Errorf("getting scoped token: %w", err)
	}

	reqURL := c.endpoints.IDMManaged() + "/" + url.PathEscape(objectType) + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building get request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading get response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get returned status %d: %s", resp.StatusCode, string(body))
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decoding get response: %w", err)
	}
	return obj, nil
}
