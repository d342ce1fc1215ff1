package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes callers are expected to branch on.
// Match with errors.Is; all of them may arrive wrapped with extra context.
var (
	// ErrNoScopes is returned when GetScopedToken is called with an empty
	// scope set. No network call is made.
	ErrNoScopes = errors.New("no scopes requested")

	// ErrAuthTimeout indicates the interactive flow exceeded its deadline
	// before the browser delivered an authorization response.
	ErrAuthTimeout = errors.New("authorization timed out")

	// ErrStateMismatch indicates the redirect carried a missing or wrong
	// state parameter. The authorization code, if any, is never used.
	ErrStateMismatch = errors.New("state parameter mismatch")

	// ErrOriginRejected indicates the redirect's Origin or Referer hostname
	// did not match the configured tenant.
	ErrOriginRejected = errors.New("request origin rejected")

	// ErrUserCancelled indicates the user declined the device-flow
	// confirmation prompt.
	ErrUserCancelled = errors.New("login cancelled by user")

	// ErrDeviceCodeExpired indicates the device code's validity window
	// elapsed while polling for completion.
	ErrDeviceCodeExpired = errors.New("device code expired")

	// ErrAuthExpired indicates the token endpoint rejected the primary token
	// with HTTP 401 during exchange. The orchestrator re-authenticates once
	// and retries; a second rejection is terminal.
	ErrAuthExpired = errors.New("primary token no longer accepted")
)

// EndpointError is a non-2xx response from the token, device-authorization
// or exchange endpoint. It carries enough context for the caller to judge
// retry-worthiness.
type EndpointError struct {
	// Status is the HTTP status code.
	Status int

	// Code is the OAuth error code from the JSON body ("invalid_grant",
	// "authorization_pending", ...) when the body was parseable.
	Code string

	// Description is the error_description from the JSON body, if any.
	Description string

	// Body is the raw response body.
	Body string
}

func (e *EndpointError) Error() string {
	if e.Code != "" {
		if e.Description != "" {
			return fmt.Sprintf("endpoint returned status %d: %s: %s", e.Status, e.Code, e.Description)
		}
		return fmt.Sprintf("endpoint returned status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.Status, e.Body)
}
