package redirect_test

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/redirect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*redirect.CallbackServer, string) {
	t.Helper()
	cfg, err := config.New("https://idp.example.com", "client-1", "http://127.0.0.1:0/callback", nil)
	require.NoError(t, err)

	srv, err := redirect.NewCallbackServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)

	return srv, "http://" + srv.Addr() + "/callback"
}

func TestCallbackDeliversResult(t *testing.T) {
	srv, callbackURL := startServer(t)

	resp, err := http.Get(callbackURL + "?" + url.Values{
		"code":  {"abc123"},
		"state": {"st-1"},
	}.Encode())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Sign-in complete")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := srv.WaitForResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.Code)
	assert.Equal(t, "st-1", result.State)
	assert.False(t, result.Cancelled)
}

func TestCallbackDeliversProviderError(t *testing.T) {
	srv, callbackURL := startServer(t)

	resp, err := http.Get(callbackURL + "?" + url.Values{
		"error":             {"access_denied"},
		"error_description": {"user denied"},
		"state":             {"st-1"},
	}.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := srv.WaitForResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access_denied", result.Error)
	assert.Equal(t, "user denied", result.ErrorDescription)
}

func TestSecondCallbackRejected(t *testing.T) {
	srv, callbackURL := startServer(t)

	first, err := http.Get(callbackURL + "?code=abc&state=st")
	require.NoError(t, err)
	first.Body.Close()

	second, err := http.Get(callbackURL + "?code=replay&state=st")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := srv.WaitForResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Code)
}

func TestWaitForResultReportsAbandonment(t *testing.T) {
	srv, _ := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := srv.WaitForResult(ctx)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}

func TestRejectsNonLoopbackRedirectURI(t *testing.T) {
	cfg, err := config.New("https://idp.example.com", "client-1", "https://app.example.com/callback", nil)
	require.NoError(t, err)

	_, err = redirect.NewCallbackServer(cfg)
	require.Error(t, err)
}
