// Package oauth2 defines the wire-level types and constants exchanged with a
// standards-compliant OAuth2/OIDC provider. It carries no behaviour beyond
// encoding; the flow and lifecycle logic live in the auth and token packages.
package oauth2

// ResponseType represents the OAuth 2.0 response type requested from the
// authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow. The engine
	// only speaks code-with-PKCE; implicit flows are not supported.
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing of the code verifier.
	// The client sends code_challenge = BASE64URL(SHA256(code_verifier)).
	// This is the only method the engine produces; plain-text PKCE is not supported.
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, redirect_uri, code_verifier.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenCodeGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token, client_id, scope.
	RefreshTokenCodeGrant GrantType = "refresh_token"
)

// TokenTypeHint tells introspection and revocation endpoints which kind of
// token is being presented.
type TokenTypeHint string

const (
	HintAccessToken  TokenTypeHint = "access_token"
	HintRefreshToken TokenTypeHint = "refresh_token"
	HintIDToken      TokenTypeHint = "id_token"
)
