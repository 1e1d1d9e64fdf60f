// Package client provides the two application-facing facades: WebAuthClient
// runs browser-based sign-in and sign-out end to end, and SessionClient
// operates on the signed-in session (refresh, introspection, revocation,
// userinfo). Both execute their network work on the dispatch worker pool.
package client

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-oidc-client/auth"
	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	"github.com/jrsteele09/go-oidc-client/dispatch"
	"github.com/jrsteele09/go-oidc-client/redirect"
	"github.com/jrsteele09/go-oidc-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CallbackReceiver is the slice of redirect.CallbackServer the sign-in loop
// needs; tests substitute their own.
type CallbackReceiver interface {
	Start(ctx context.Context) error
	WaitForResult(ctx context.Context) (*auth.RedirectResult, error)
	Stop()
}

// WebAuthClient drives browser-based sign-in: it starts the authorization
// flow, opens the system browser, receives the redirect on a loopback
// listener and completes the code exchange. One sign-in runs at a time;
// overlapping attempts fail with auth.ErrAlreadyInProgress.
type WebAuthClient struct {
	cfg        *config.Config
	flow       *auth.Flow
	tokens     *token.Service
	discovery  *discovery.Service
	dispatcher *dispatch.Dispatcher
	launcher   redirect.Launcher
	receiver   func() (CallbackReceiver, error)
}

// WebAuthOption configures a WebAuthClient.
type WebAuthOption func(*WebAuthClient)

// WithLauncher overrides how authorization URLs reach the browser.
func WithLauncher(launcher redirect.Launcher) WebAuthOption {
	return func(c *WebAuthClient) { c.launcher = launcher }
}

// WithCallbackReceiver overrides how redirects are received.
func WithCallbackReceiver(factory func() (CallbackReceiver, error)) WebAuthOption {
	return func(c *WebAuthClient) { c.receiver = factory }
}

// NewWebAuthClient assembles the sign-in facade. By default redirects are
// received on a loopback server bound to the config's redirect URI and URLs
// open in the system browser.
func NewWebAuthClient(cfg *config.Config, flow *auth.Flow, tokens *token.Service, disc *discovery.Service, dispatcher *dispatch.Dispatcher, options ...WebAuthOption) (*WebAuthClient, error) {
	if cfg == nil || flow == nil || tokens == nil || disc == nil || dispatcher == nil {
		return nil, errors.New("[client.NewWebAuthClient] all collaborators are required")
	}
	c := &WebAuthClient{
		cfg:        cfg,
		flow:       flow,
		tokens:     tokens,
		discovery:  disc,
		dispatcher: dispatcher,
		launcher:   redirect.BrowserLauncher{},
	}
	c.receiver = func() (CallbackReceiver, error) { return redirect.NewCallbackServer(cfg) }
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// SignIn runs the full browser sign-in off the caller's goroutine and
// delivers exactly one terminal callback with the issued token set.
func (c *WebAuthClient) SignIn(ctx context.Context, payload *auth.Payload, callbacks dispatch.Callbacks[*token.TokenSet]) *dispatch.Handle {
	return dispatch.Submit(c.dispatcher, ctx, func(ctx context.Context) (*token.TokenSet, error) {
		return c.signIn(ctx, payload)
	}, callbacks)
}

// SignInSync runs the full browser sign-in and blocks until it completes.
func (c *WebAuthClient) SignInSync(ctx context.Context, payload *auth.Payload) (*token.TokenSet, error) {
	return dispatch.Await(c.dispatcher, ctx, func(ctx context.Context) (*token.TokenSet, error) {
		return c.signIn(ctx, payload)
	})
}

func (c *WebAuthClient) signIn(ctx context.Context, payload *auth.Payload) (*token.TokenSet, error) {
	receiver, err := c.receiver()
	if err != nil {
		return nil, errors.Wrap(err, "[WebAuthClient.signIn] creating callback receiver")
	}
	if err = receiver.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "[WebAuthClient.signIn] starting callback receiver")
	}
	defer receiver.Stop()

	authorizationURL, err := c.flow.Start(ctx, payload)
	if err != nil {
		return nil, err
	}
	if err = c.launcher.Launch(authorizationURL); err != nil {
		c.flow.Cancel()
		return nil, err
	}

	result, err := receiver.WaitForResult(ctx)
	if err != nil {
		c.flow.Cancel()
		return nil, err
	}
	return c.flow.Resume(ctx, result)
}

// SignOut clears the local session and, when the provider advertises an
// end-session endpoint, walks the browser through provider-side sign-out as
// well. Local state is always cleared, even if the browser leg fails.
func (c *WebAuthClient) SignOut(ctx context.Context, callbacks dispatch.Callbacks[struct{}]) *dispatch.Handle {
	return dispatch.Submit(c.dispatcher, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.signOut(ctx)
	}, callbacks)
}

// SignOutSync is the blocking form of SignOut.
func (c *WebAuthClient) SignOutSync(ctx context.Context) error {
	_, err := dispatch.Await(c.dispatcher, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.signOut(ctx)
	})
	return err
}

func (c *WebAuthClient) signOut(ctx context.Context) error {
	browserErr := c.signOutFromProvider(ctx)
	if err := c.flow.SignOut(); err != nil {
		return err
	}
	return browserErr
}

func (c *WebAuthClient) signOutFromProvider(ctx context.Context) error {
	set, err := c.tokens.Current()
	if err != nil {
		// Nothing issued, nothing to end at the provider.
		return nil
	}
	metadata, err := c.discovery.Metadata(ctx)
	if err != nil {
		return err
	}
	if metadata.EndSessionEndpoint == "" || set.IDToken == "" {
		return nil
	}

	endSessionURL, state, err := c.endSessionURL(metadata.EndSessionEndpoint, set.IDToken)
	if err != nil {
		return err
	}

	receiver, err := c.receiver()
	if err != nil {
		return errors.Wrap(err, "[WebAuthClient.signOutFromProvider] creating callback receiver")
	}
	if err = receiver.Start(ctx); err != nil {
		return errors.Wrap(err, "[WebAuthClient.signOutFromProvider] starting callback receiver")
	}
	defer receiver.Stop()

	if err = c.launcher.Launch(endSessionURL); err != nil {
		return err
	}
	result, err := receiver.WaitForResult(ctx)
	if err != nil {
		return err
	}
	if result.State != "" && result.State != state {
		return errors.WithStack(auth.ErrStateMismatch)
	}
	log.Debug().Msg("provider-side sign-out completed")
	return nil
}

func (c *WebAuthClient) endSessionURL(endpoint, idToken string) (string, string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", "", errors.Wrap(err, "[WebAuthClient.endSessionURL] parsing end-session endpoint")
	}
	state, err := auth.GenerateState()
	if err != nil {
		return "", "", err
	}

	postLogout := c.cfg.EndSessionRedirectURI
	if postLogout == "" {
		postLogout = c.cfg.RedirectURI
	}
	params := url.Values{
		"id_token_hint":            {idToken},
		"post_logout_redirect_uri": {postLogout},
		"state":                    {state},
	}
	parsed.RawQuery = params.Encode()
	return parsed.String(), state, nil
}

// Cancel cooperatively cancels an in-flight sign-in.
func (c *WebAuthClient) Cancel() {
	c.flow.Cancel()
}

// FlowState exposes the authorization flow's current state.
func (c *WebAuthClient) FlowState() auth.State {
	return c.flow.State()
}

// IsInProgress reports whether a sign-in is between Start and a terminal
// state.
func (c *WebAuthClient) IsInProgress() bool {
	switch c.flow.State() {
	case auth.StateFetchingMetadata, auth.StateBuildingRequest,
		auth.StateAwaitingRedirect, auth.StateExchangingCode:
		return true
	}
	return false
}

// IsAuthenticated reports whether a token set is stored.
func (c *WebAuthClient) IsAuthenticated() bool {
	_, err := c.tokens.Current()
	return err == nil
}
