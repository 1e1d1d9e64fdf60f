package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// IDTokenVerifier checks the cryptographic signature of a raw ID token.
// Key resolution (JWKS fetch, rotation) is the verifier's concern; the flow
// only consumes the verdict. A nil verifier on the flow skips signature
// verification — nonce validation still applies.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) error
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier builds an IDTokenVerifier backed by the provider's JWKS,
// resolved through OIDC discovery.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[auth.NewOIDCVerifier] resolving provider")
	}
	return &oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, rawIDToken string) error {
	_, err := v.verifier.Verify(ctx, rawIDToken)
	return err
}

// idTokenNonce extracts the nonce claim without verifying the signature.
// Signature trust is the IDTokenVerifier's job; this only reads the claim
// the flow compares against the persisted request.
func idTokenNonce(rawIDToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, claims); err != nil {
		return "", errors.Wrap(err, "[auth.idTokenNonce] parsing id token")
	}
	nonce, _ := claims["nonce"].(string)
	return nonce, nil
}
