package auth_test

import (
	"regexp"
	"testing"

	"github.com/jrsteele09/go-oidc-client/auth"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unreservedChars = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := auth.GeneratePKCE()
	require.NoError(t, err)

	assert.Len(t, pkce.Verifier, 43)
	assert.Len(t, pkce.Challenge, 43)
	assert.Equal(t, oauth2.CodeMethodTypeS256, pkce.Method)
	assert.True(t, unreservedChars.MatchString(pkce.Verifier))
	assert.True(t, unreservedChars.MatchString(pkce.Challenge))
	assert.Equal(t, auth.ChallengeS256(pkce.Verifier), pkce.Challenge)
}

func TestChallengeS256KnownVector(t *testing.T) {
	// RFC 7636 appendix B.
	challenge := auth.ChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
}

func TestGenerateStateAndNonceAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		state, err := auth.GenerateState()
		require.NoError(t, err)
		nonce, err := auth.GenerateNonce()
		require.NoError(t, err)

		assert.Len(t, state, 22)
		assert.Len(t, nonce, 22)
		assert.False(t, seen[state])
		assert.False(t, seen[nonce])
		seen[state] = true
		seen[nonce] = true
	}
}
