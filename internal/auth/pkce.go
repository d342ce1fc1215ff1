package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// flowSession holds the per-attempt secrets of a browser-based flow: the
// PKCE verifier/challenge pair and the CSRF state value. A session is
// created immediately before the authorization request and destroyed on
// every exit path, success or failure.
type flowSession struct {
	verifier  string
	challenge string
	state     string
}

// newFlowSession generates fresh PKCE material (S256) and a random state.
func newFlowSession() (*flowSession, error) {
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	return &flowSession{
		verifier:  verifier,
		challenge: oauth2.S256ChallengeFromVerifier(verifier),
		state:     state,
	}, nil
}

// destroy clears the session secrets. Safe to call more than once.
func (s *flowSession) destroy() {
	s.verifier = ""
	s.challenge = ""
	s.state = ""
}

// randomState returns 32 bytes of crypto/rand entropy, base64url-encoded.
func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
