// Package token holds the issued credential bundle (TokenSet) and the
// lifecycle operations against the provider's token, introspection and
// revocation endpoints.
package token

import (
	"time"

	"github.com/jrsteele09/go-oidc-client/internal/utils"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/pkg/errors"
	xoauth2 "golang.org/x/oauth2"
)

// TokenSet bundles the credentials issued for a session. It is replaced
// wholesale on refresh and cleared wholesale on revoke/sign-out; it is never
// partially mutated.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresIn    int       `json:"expires_in"`
}

// FromResponse builds a TokenSet from a token-endpoint response, stamping it
// with the issuance time. A response without an access token is rejected so
// a TokenSet is always either fully present or absent.
func FromResponse(resp *oauth2.TokenResponse, issuedAt time.Time) (*TokenSet, error) {
	accessToken := utils.Value(resp.AccessToken)
	if accessToken == "" {
		return nil, errors.New("[token.FromResponse] response has no access token")
	}
	return &TokenSet{
		AccessToken:  accessToken,
		RefreshToken: utils.Value(resp.RefreshToken),
		IDToken:      utils.Value(resp.IdToken),
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		IssuedAt:     issuedAt,
		ExpiresIn:    resp.ExpiresIn,
	}, nil
}

// ExpiresAt returns the access token's expiry instant.
func (t *TokenSet) ExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IsExpired reports whether the access token is expired at the given
// instant, allowing for clock skew. The boundary is inclusive: a token is
// expired at exactly issued_at + expires_in.
func (t *TokenSet) IsExpired(now time.Time, skew time.Duration) bool {
	return !now.Before(t.ExpiresAt().Add(-skew))
}

// HasRefreshToken reports whether the set carries a refresh token.
func (t *TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// ToOAuth2Token converts the set to a golang.org/x/oauth2 token for interop
// with libraries consuming that type. The ID token rides along as the
// conventional "id_token" extra.
func (t *TokenSet) ToOAuth2Token() *xoauth2.Token {
	converted := &xoauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
	}
	if t.IDToken != "" {
		converted = converted.WithExtra(map[string]interface{}{"id_token": t.IDToken})
	}
	return converted
}
