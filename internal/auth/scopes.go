package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CanonicalScopes returns the scope set in canonical form: trimmed,
// empties dropped, duplicates removed, sorted. Two requests asking for the
// same scopes in different order canonicalize identically, which is what
// makes per-scope-set caching and request deduplication work.
func CanonicalScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ScopeKey returns a stable cache key for a scope set: the hex SHA-256 of
// the canonical space-joined scope string. The raw scopes never appear in
// logs or cache keys.
func ScopeKey(scopes []string) string {
	joined := strings.Join(CanonicalScopes(scopes), " ")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// JoinScopes renders a scope set as the space-separated request parameter.
func JoinScopes(scopes []string) string {
	return strings.Join(CanonicalScopes(scopes), " ")
}
