// Package discovery fetches and caches the provider's OIDC discovery
// document. The document is fetched lazily on first use, persisted through
// the session store, and refreshed only on explicit invalidation.
package discovery

import (
	"strings"

	"github.com/jrsteele09/go-oidc-client/transport"
)

// ProviderMetadata is the subset of the OIDC discovery document the engine
// consumes (authorization, token, introspection, revocation, userinfo and
// end-session endpoints plus provider capabilities).
type ProviderMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint,omitempty"`
	RevocationEndpoint               string   `json:"revocation_endpoint,omitempty"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint               string   `json:"end_session_endpoint,omitempty"`
	JwksURI                          string   `json:"jwks_uri,omitempty"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// Validate checks the document against the issuer it was fetched for.
// A mismatched or incomplete document is a protocol error: the engine must
// not build an authorization URL from endpoints it cannot trust.
func (m *ProviderMetadata) Validate(expectedIssuer string) error {
	if strings.TrimRight(m.Issuer, "/") != strings.TrimRight(expectedIssuer, "/") {
		return &transport.ProtocolError{
			Reason: "discovery document issuer mismatch",
		}
	}
	if m.AuthorizationEndpoint == "" {
		return &transport.ProtocolError{Reason: "discovery document missing authorization_endpoint"}
	}
	if m.TokenEndpoint == "" {
		return &transport.ProtocolError{Reason: "discovery document missing token_endpoint"}
	}
	return nil
}

// SupportsPKCES256 reports whether the provider advertises the S256 code
// challenge method. An empty advertisement is treated as supported, since
// many providers omit the field.
func (m *ProviderMetadata) SupportsPKCES256() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}
