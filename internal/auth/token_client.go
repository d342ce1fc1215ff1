package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxTokenResponseSize bounds how much of a token endpoint response we are
// willing to read. Real responses are well under 1 KiB.
const maxTokenResponseSize = 1 << 20

// tokenResponse is the successful JSON body of a token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// tokenErrorBody is the error JSON body per RFC 6749 section 5.2.
type tokenErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// tokenClient posts form-encoded grants to an OAuth endpoint and decodes the
// response. All four grant types this package uses share this shape.
type tokenClient struct {
	httpClient *http.Client
}

func newTokenClient(hc *http.Client) *tokenClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &tokenClient{httpClient: hc}
}

// Do posts the form to endpoint and returns the decoded token response.
// Non-2xx responses come back as *EndpointError with the OAuth error code
// parsed out when the body allows it.
func (c *tokenClient) Do(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		epErr := &EndpointError{Status: resp.StatusCode, Body: string(body)}
		var oauthErr tokenErrorBody
		if json.Unmarshal(body, &oauthErr) == nil {
			epErr.Code = oauthErr.Error
			epErr.Description = oauthErr.ErrorDescription
		}
		return nil, epErr
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tok, nil
}

// toRecord converts a token response into a persisted record for the tenant.
func (t *tokenResponse) toRecord(tenant string, now time.Time) *TokenRecord {
	return &TokenRecord{
		AccessToken: t.AccessToken,
		ExpiresAt:   now.Add(time.Duration(t.ExpiresIn) * time.Second),
		Tenant:      tenant,
	}
}
