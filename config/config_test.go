package config_test

import (
	"testing"

	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/stretchr/testify/require"
)

func TestNewValidConfig(t *testing.T) {
	cfg, err := config.New("https://idp.example.com/", "client-1", "http://localhost:3000/callback", []string{"profile", "email"})
	require.NoError(t, err)

	require.Equal(t, "https://idp.example.com", cfg.Issuer)
	require.Equal(t, "https://idp.example.com/.well-known/openid-configuration", cfg.DiscoveryURI)
	require.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
}

func TestNewFailsFast(t *testing.T) {
	tests := []struct {
		name        string
		issuer      string
		clientID    string
		redirectURI string
	}{
		{name: "missing issuer", issuer: "", clientID: "c", redirectURI: "http://localhost/cb"},
		{name: "missing client id", issuer: "https://idp.example.com", clientID: "", redirectURI: "http://localhost/cb"},
		{name: "missing redirect uri", issuer: "https://idp.example.com", clientID: "c", redirectURI: ""},
		{name: "relative issuer", issuer: "idp.example.com", clientID: "c", redirectURI: "http://localhost/cb"},
		{name: "relative redirect", issuer: "https://idp.example.com", clientID: "c", redirectURI: "/callback"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.New(tc.issuer, tc.clientID, tc.redirectURI, nil)
			require.Error(t, err)
		})
	}
}

func TestOpenIDScopeAlwaysPresent(t *testing.T) {
	cfg, err := config.New("https://idp.example.com", "c", "http://localhost/cb", nil)
	require.NoError(t, err)
	require.True(t, cfg.HasScope("openid"))
	require.Equal(t, "openid", cfg.ScopeString())
}

func TestMergeScopes(t *testing.T) {
	cfg, err := config.New("https://idp.example.com", "c", "http://localhost/cb", []string{"profile"})
	require.NoError(t, err)

	merged := cfg.MergeScopes([]string{"email", "profile", ""})
	require.Equal(t, []string{"openid", "profile", "email"}, merged)
}
