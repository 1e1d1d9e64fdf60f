package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/pkg/errors"
)

const (
	// verifierEntropyBytes yields a 43-character base64url verifier, the
	// RFC 7636 minimum length (maximum is 128).
	verifierEntropyBytes = 32

	// stateEntropyBytes / nonceEntropyBytes give 22-character tokens.
	stateEntropyBytes = 16
	nonceEntropyBytes = 16
)

// PKCEParams holds a generated verifier/challenge pair. The verifier stays
// client-side until the code exchange; the challenge travels in the
// authorization request.
type PKCEParams struct {
	Verifier  string
	Challenge string
	Method    oauth2.CodeMethodType
}

// GeneratePKCE produces a fresh PKCE pair from a cryptographically secure
// random source. Only the S256 method is produced; plain-text PKCE is not
// supported.
func GeneratePKCE() (*PKCEParams, error) {
	verifier, err := randomToken(verifierEntropyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "[auth.GeneratePKCE] generating verifier")
	}
	return &PKCEParams{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
		Method:    oauth2.CodeMethodTypeS256,
	}, nil
}

// ChallengeS256 computes base64url-no-pad(SHA-256(verifier)).
func ChallengeS256(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState produces the anti-CSRF correlation token round-tripped
// through the authorization redirect. Single use.
func GenerateState() (string, error) {
	return randomToken(stateEntropyBytes)
}

// GenerateNonce produces the anti-replay value embedded in the ID token.
// Single use.
func GenerateNonce() (string, error) {
	return randomToken(nonceEntropyBytes)
}

func randomToken(entropyBytes int) (string, error) {
	raw := make([]byte, entropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "reading random source")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
