// Package config holds the immutable OAuth2/OIDC client registration used by
// every other component of the engine. A Config is built once at startup,
// validated eagerly, and never mutated afterwards.
package config

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// WellKnownOpenIDConfiguration is the standard OIDC discovery document path.
const WellKnownOpenIDConfiguration = "/.well-known/openid-configuration"

// ScopeOpenID must be present on every OIDC authorization request.
const ScopeOpenID = "openid"

// Config is the registration of this client with the identity provider.
// All fields are fixed for the lifetime of the process.
type Config struct {
	// Issuer is the identity provider's issuer URL, e.g. "https://idp.example.com".
	Issuer string

	// ClientID identifies this application at the provider.
	ClientID string

	// RedirectURI is where the authorization response is delivered. It must
	// exactly match a URI registered with the provider.
	RedirectURI string

	// EndSessionRedirectURI is where the provider redirects after a
	// browser-side sign-out. Optional; falls back to RedirectURI.
	EndSessionRedirectURI string

	// Scopes are the OAuth2 scopes requested during sign-in. "openid" is
	// always included.
	Scopes []string

	// DiscoveryURI is the location of the provider's discovery document.
	// Defaults to {Issuer}/.well-known/openid-configuration.
	DiscoveryURI string
}

// New validates the registration and returns an immutable Config.
// Missing issuer, client id or redirect URI fail fast here rather than
// surfacing mid-flow.
func New(issuer, clientID, redirectURI string, scopes []string) (*Config, error) {
	c := &Config{
		Issuer:      strings.TrimRight(issuer, "/"),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scopes:      withOpenIDScope(scopes),
	}
	c.DiscoveryURI = c.Issuer + WellKnownOpenIDConfiguration

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return errors.New("[config.New] issuer is required")
	}
	if c.ClientID == "" {
		return errors.New("[config.New] client id is required")
	}
	if c.RedirectURI == "" {
		return errors.New("[config.New] redirect URI is required")
	}
	if err := validateAbsoluteURL(c.Issuer); err != nil {
		return errors.Wrap(err, "[config.New] issuer")
	}
	if err := validateAbsoluteURL(c.RedirectURI); err != nil {
		return errors.Wrap(err, "[config.New] redirect URI")
	}
	if c.EndSessionRedirectURI != "" {
		if err := validateAbsoluteURL(c.EndSessionRedirectURI); err != nil {
			return errors.Wrap(err, "[config.New] end session redirect URI")
		}
	}
	return nil
}

// HasScope reports whether the registration requests a specific scope.
func (c *Config) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ScopeString returns the configured scopes as a space-separated string,
// the form the wire protocol expects.
func (c *Config) ScopeString() string {
	return strings.Join(c.Scopes, " ")
}

// MergeScopes returns the configured scopes plus any extras, deduplicated,
// preserving order of first appearance.
func (c *Config) MergeScopes(extra []string) []string {
	merged := make([]string, 0, len(c.Scopes)+len(extra))
	seen := make(map[string]struct{}, len(c.Scopes)+len(extra))
	for _, s := range append(append([]string{}, c.Scopes...), extra...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	return merged
}

func withOpenIDScope(scopes []string) []string {
	for _, s := range scopes {
		if s == ScopeOpenID {
			return append([]string{}, scopes...)
		}
	}
	return append([]string{ScopeOpenID}, scopes...)
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "invalid URL")
	}
	if !u.IsAbs() || u.Host == "" {
		return errors.Errorf("URL %q must be absolute", raw)
	}
	return nil
}
