package token_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-client/internal/utils"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/jrsteele09/go-oidc-client/token"
	"github.com/stretchr/testify/require"
)

func TestFromResponse(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	set, err := token.FromResponse(&oauth2.TokenResponse{
		AccessToken:  utils.Ptr("AT1"),
		RefreshToken: utils.Ptr("RT1"),
		IdToken:      utils.Ptr("IDT1"),
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}, issued)
	require.NoError(t, err)

	require.Equal(t, "AT1", set.AccessToken)
	require.Equal(t, "RT1", set.RefreshToken)
	require.Equal(t, "IDT1", set.IDToken)
	require.Equal(t, issued.Add(time.Hour), set.ExpiresAt())
}

func TestFromResponseRejectsEmptyAccessToken(t *testing.T) {
	_, err := token.FromResponse(&oauth2.TokenResponse{TokenType: "Bearer"}, time.Now())
	require.Error(t, err)
}

func TestIsExpiredBoundaryInclusive(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	set := &token.TokenSet{AccessToken: "AT1", IssuedAt: issued, ExpiresIn: 3600}

	exactExpiry := issued.Add(time.Hour)
	require.True(t, set.IsExpired(exactExpiry, 0))
	require.False(t, set.IsExpired(exactExpiry.Add(-time.Second), 0))
}

func TestIsExpiredWithSkew(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	set := &token.TokenSet{AccessToken: "AT1", IssuedAt: issued, ExpiresIn: 3600}

	// 30s of skew moves the boundary forward.
	require.True(t, set.IsExpired(issued.Add(time.Hour-30*time.Second), 30*time.Second))
	require.False(t, set.IsExpired(issued.Add(time.Hour-31*time.Second), 30*time.Second))
}

func TestToOAuth2Token(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	set := &token.TokenSet{
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		IDToken:      "IDT1",
		TokenType:    "Bearer",
		IssuedAt:     issued,
		ExpiresIn:    3600,
	}

	converted := set.ToOAuth2Token()
	require.Equal(t, "AT1", converted.AccessToken)
	require.Equal(t, "RT1", converted.RefreshToken)
	require.Equal(t, issued.Add(time.Hour), converted.Expiry)
	require.Equal(t, "IDT1", converted.Extra("id_token"))
}
