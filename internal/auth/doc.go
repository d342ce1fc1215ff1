// Package auth implements credential acquisition and token management for a
// tenant-hosted identity platform.
//
// A primary, broad-scope token is obtained once per session through one of
// three credential strategies (interactive authorization-code with PKCE,
// device authorization, or service-account JWT bearer) and cached in a
// TokenStore. Every API call then narrows the primary token to the minimal
// scope set it needs via RFC 8693 token exchange. The Service type is the
// single entry point the rest of the process uses:
//
//	token, err := svc.GetScopedToken(ctx, []string{"fr:idm:*"})
//
// Concurrent callers are deduplicated per cache key so that at most one
// acquisition or exchange is in flight for the primary token or for any
// given scope set.
package auth
