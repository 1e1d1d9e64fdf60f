package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oidc-client/auth"
	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/token"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flowFixture wires a Flow against a mock provider and an in-memory
// encrypted store, so tests can drive the full redirect round-trip.
type flowFixture struct {
	flow   *auth.Flow
	tokens *token.Service
	store  *sessions.SecureStore
	cfg    *config.Config

	// nonce minted into the next token response's id_token. Tests set it
	// from the authorization URL before resuming.
	idTokenNonce string
}

func newFlowFixture(t *testing.T, options ...auth.FlowOption) *flowFixture {
	t.Helper()
	f := &flowFixture{}

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc(config.WellKnownOpenIDConfiguration, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, string(oauth2.AuthorizationCodeGrant), r.PostFormValue("grant_type"))
		assert.NotEmpty(t, r.PostFormValue("code_verifier"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "AT1",
			"refresh_token": "RT1",
			"id_token":      mintIDToken(t, f.idTokenNonce),
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})

	cfg, err := config.New(srv.URL, "client-1", "http://localhost:3000/callback", nil)
	require.NoError(t, err)
	f.cfg = cfg

	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("key"), []byte("salt"))
	require.NoError(t, err)
	f.store, err = sessions.NewSecureStore(sessions.NewMemoryStore(), cipher)
	require.NoError(t, err)

	disc, err := discovery.NewService(cfg, f.store, transport.New())
	require.NoError(t, err)
	f.tokens, err = token.NewService(cfg, f.store, disc, transport.New())
	require.NoError(t, err)
	f.flow, err = auth.NewFlow(cfg, f.store, disc, f.tokens, options...)
	require.NoError(t, err)
	return f
}

// startSignIn runs Start and returns the parsed authorization URL query,
// capturing the nonce for the fixture's token endpoint.
func (f *flowFixture) startSignIn(t *testing.T, payload *auth.Payload) url.Values {
	t.Helper()
	authorizationURL, err := f.flow.Start(context.Background(), payload)
	require.NoError(t, err)

	parsed, err := url.Parse(authorizationURL)
	require.NoError(t, err)
	f.idTokenNonce = parsed.Query().Get("nonce")
	return parsed.Query()
}

func mintIDToken(t *testing.T, nonce string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "user-1", "nonce": nonce}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestStartBuildsAuthorizationURL(t *testing.T) {
	f := newFlowFixture(t)

	query := f.startSignIn(t, &auth.Payload{
		LoginHint:   "user@example.com",
		ExtraScopes: []string{"offline_access"},
		ExtraParams: map[string]string{"prompt": "consent", "client_id": "evil"},
	})

	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client-1", query.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/callback", query.Get("redirect_uri"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "user@example.com", query.Get("login_hint"))
	assert.Equal(t, "consent", query.Get("prompt"))
	assert.Contains(t, query.Get("scope"), "openid")
	assert.Contains(t, query.Get("scope"), "offline_access")
	assert.GreaterOrEqual(t, len(query.Get("state")), 22)
	assert.GreaterOrEqual(t, len(query.Get("code_challenge")), 43)

	assert.Equal(t, auth.StateAwaitingRedirect, f.flow.State())

	// Extra parameters never shadow protocol parameters.
	assert.Equal(t, "client-1", query.Get("client_id"))

	_, err := f.store.Get(sessions.KeyPendingRequest)
	require.NoError(t, err)
}

func TestStartRejectedWhileAwaitingRedirect(t *testing.T) {
	f := newFlowFixture(t)
	f.startSignIn(t, nil)

	_, err := f.flow.Start(context.Background(), nil)
	require.ErrorIs(t, err, auth.ErrAlreadyInProgress)
}

func TestResumeExchangesCodeAndPersistsTokens(t *testing.T) {
	f := newFlowFixture(t)
	query := f.startSignIn(t, nil)

	set, err := f.flow.Resume(context.Background(), &auth.RedirectResult{
		Code:  "abc123",
		State: query.Get("state"),
	})
	require.NoError(t, err)
	assert.Equal(t, "AT1", set.AccessToken)
	assert.Equal(t, "RT1", set.RefreshToken)
	assert.Equal(t, auth.StateAuthorized, f.flow.State())

	stored, err := f.tokens.Current()
	require.NoError(t, err)
	assert.Equal(t, "AT1", stored.AccessToken)

	_, err = f.store.Get(sessions.KeyPendingRequest)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestResumeStateMismatchDiscardsPendingRequest(t *testing.T) {
	f := newFlowFixture(t)
	f.startSignIn(t, nil)

	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{Code: "abc", State: "xyz"})
	require.ErrorIs(t, err, auth.ErrStateMismatch)
	assert.Equal(t, auth.StateFailed, f.flow.State())

	_, err = f.store.Get(sessions.KeyPendingRequest)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	// The request was consumed, so a replayed redirect is rejected outright.
	_, err = f.flow.Resume(context.Background(), &auth.RedirectResult{Code: "abc", State: "xyz"})
	require.ErrorIs(t, err, auth.ErrNotAwaitingRedirect)
}

func TestResumeNonceMismatchFailsClosed(t *testing.T) {
	f := newFlowFixture(t)
	query := f.startSignIn(t, nil)
	f.idTokenNonce = "tampered"

	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{
		Code:  "abc123",
		State: query.Get("state"),
	})
	require.ErrorIs(t, err, auth.ErrNonceMismatch)

	_, err = f.tokens.Current()
	require.ErrorIs(t, err, token.ErrNoTokens)
}

func TestResumeCancellation(t *testing.T) {
	f := newFlowFixture(t)
	f.startSignIn(t, nil)

	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{Cancelled: true})
	require.ErrorIs(t, err, auth.ErrCancelled)
	assert.Equal(t, auth.StateCancelled, f.flow.State())

	_, err = f.store.Get(sessions.KeyPendingRequest)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestResumeProviderErrorRequiringReauth(t *testing.T) {
	f := newFlowFixture(t)
	query := f.startSignIn(t, nil)

	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{
		Error: oauth2.ErrorCodeLoginRequired,
		State: query.Get("state"),
	})

	oauthErr := &oauth2.Error{}
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, oauth2.ErrorCodeLoginRequired, oauthErr.Code)
	assert.Equal(t, auth.StateReauthRequired, f.flow.State())

	// ReauthRequired is re-entrant, a fresh sign-in may start.
	f.startSignIn(t, nil)
	assert.Equal(t, auth.StateAwaitingRedirect, f.flow.State())
}

func TestResumeExpiredRequest(t *testing.T) {
	now := time.Now()
	f := newFlowFixture(t,
		auth.WithRequestTTL(5*time.Minute),
		auth.WithFlowNowFunc(func() time.Time { return now }),
	)
	query := f.startSignIn(t, nil)
	now = now.Add(6 * time.Minute)

	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{
		Code:  "abc123",
		State: query.Get("state"),
	})
	require.ErrorIs(t, err, auth.ErrRequestExpired)
}

func TestFlowResumesAcrossRestart(t *testing.T) {
	f := newFlowFixture(t)
	query := f.startSignIn(t, nil)

	// A second flow over the same store stands in for a fresh process.
	disc, err := discovery.NewService(f.cfg, f.store, transport.New())
	require.NoError(t, err)
	restarted, err := auth.NewFlow(f.cfg, f.store, disc, f.tokens)
	require.NoError(t, err)
	assert.Equal(t, auth.StateAwaitingRedirect, restarted.State())

	set, err := restarted.Resume(context.Background(), &auth.RedirectResult{
		Code:  "abc123",
		State: query.Get("state"),
	})
	require.NoError(t, err)
	assert.Equal(t, "AT1", set.AccessToken)
}

func TestCancelWhileAwaitingRedirect(t *testing.T) {
	f := newFlowFixture(t)
	f.startSignIn(t, nil)

	f.flow.Cancel()
	assert.Equal(t, auth.StateCancelled, f.flow.State())

	_, err := f.store.Get(sessions.KeyPendingRequest)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestSignOutClearsSession(t *testing.T) {
	f := newFlowFixture(t)
	query := f.startSignIn(t, nil)
	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{
		Code:  "abc123",
		State: query.Get("state"),
	})
	require.NoError(t, err)

	require.NoError(t, f.flow.SignOut())
	assert.Equal(t, auth.StateSignedOut, f.flow.State())

	_, err = f.tokens.Current()
	require.ErrorIs(t, err, token.ErrNoTokens)

	// SignedOut loops back to a fresh sign-in.
	f.startSignIn(t, nil)
	assert.Equal(t, auth.StateAwaitingRedirect, f.flow.State())
}

func TestStateListenerObservesTransitions(t *testing.T) {
	var states []auth.State
	f := newFlowFixture(t, auth.WithStateListener(func(s auth.State) {
		states = append(states, s)
	}))
	query := f.startSignIn(t, nil)
	_, err := f.flow.Resume(context.Background(), &auth.RedirectResult{
		Code:  "abc123",
		State: query.Get("state"),
	})
	require.NoError(t, err)

	assert.Equal(t, []auth.State{
		auth.StateFetchingMetadata,
		auth.StateBuildingRequest,
		auth.StateAwaitingRedirect,
		auth.StateExchangingCode,
		auth.StateAuthorized,
	}, states)
}
