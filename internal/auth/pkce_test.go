package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/oauth2"
)

func TestNewFlowSession(t *testing.T) {
	s, err := newFlowSession()
	require.NoError(t, err)

	assert.NotEmpty(t, s.verifier)
	assert.NotEmpty(t, s.state)
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(s.verifier), s.challenge)

	// Sessions never repeat state or verifier.
	s2, err := newFlowSession()
	require.NoError(t, err)
	assert.NotEqual(t, s.state, s2.state)
	assert.NotEqual(t, s.verifier, s2.verifier)
}

func TestFlowSessionDestroy(t *testing.T) {
	s, err := newFlowSession()
	require.NoError(t, err)

	s.destroy()
	assert.Empty(t, s.verifier)
	assert.Empty(t, s.challenge)
	assert.Empty(t, s.state)

	// Idempotent.
	s.destroy()
}
