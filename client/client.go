package client

import (
	"time"

	"github.com/jrsteele09/go-oidc-client/auth"
	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	"github.com/jrsteele09/go-oidc-client/dispatch"
	"github.com/jrsteele09/go-oidc-client/redirect"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/token"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/pkg/errors"
)

// Options configures the composition root. Zero values get sensible
// defaults; only Store is required.
type Options struct {
	// Store persists encrypted session state. Required.
	Store *sessions.SecureStore

	// Sender performs outbound HTTP. Defaults to transport.New().
	Sender transport.Sender

	// Launcher opens URLs in a browser. Defaults to the system browser.
	Launcher redirect.Launcher

	// CallbackReceiver overrides how redirects are received. Defaults to a
	// loopback server on the config's redirect URI.
	CallbackReceiver func() (CallbackReceiver, error)

	// Verifier checks ID token signatures. Optional.
	Verifier auth.IDTokenVerifier

	// RequestTTL bounds how long a pending sign-in stays resumable.
	RequestTTL time.Duration

	// ExpirySkew is how early access tokens count as expired.
	ExpirySkew time.Duration

	// Workers sizes the dispatch pool.
	Workers int

	// CallbackExecutor runs terminal callbacks, e.g. on a UI queue.
	CallbackExecutor dispatch.Executor
}

// Client is the assembled engine: a WebAuthClient for sign-in and sign-out
// plus a SessionClient for the signed-in session, sharing one dispatcher
// and one encrypted store.
type Client struct {
	web        *WebAuthClient
	session    *SessionClient
	dispatcher *dispatch.Dispatcher
}

// New wires the whole engine from a client registration and options. No
// package-level state is involved; independent Clients are fully isolated.
func New(cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[client.New] config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("[client.New] session store is required")
	}
	sender := opts.Sender
	if sender == nil {
		sender = transport.New()
	}

	disc, err := discovery.NewService(cfg, opts.Store, sender)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewService(cfg, opts.Store, disc, sender)
	if err != nil {
		return nil, err
	}

	var flowOptions []auth.FlowOption
	if opts.RequestTTL > 0 {
		flowOptions = append(flowOptions, auth.WithRequestTTL(opts.RequestTTL))
	}
	if opts.Verifier != nil {
		flowOptions = append(flowOptions, auth.WithIDTokenVerifier(opts.Verifier))
	}
	flow, err := auth.NewFlow(cfg, opts.Store, disc, tokens, flowOptions...)
	if err != nil {
		return nil, err
	}

	var dispatcherOptions []dispatch.DispatcherOption
	if opts.Workers > 0 {
		dispatcherOptions = append(dispatcherOptions, dispatch.WithWorkers(opts.Workers))
	}
	if opts.CallbackExecutor != nil {
		dispatcherOptions = append(dispatcherOptions, dispatch.WithExecutor(opts.CallbackExecutor))
	}
	dispatcher := dispatch.NewDispatcher(dispatcherOptions...)

	var webOptions []WebAuthOption
	if opts.Launcher != nil {
		webOptions = append(webOptions, WithLauncher(opts.Launcher))
	}
	if opts.CallbackReceiver != nil {
		webOptions = append(webOptions, WithCallbackReceiver(opts.CallbackReceiver))
	}
	web, err := NewWebAuthClient(cfg, flow, tokens, disc, dispatcher, webOptions...)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	var sessionOptions []SessionOption
	if opts.ExpirySkew > 0 {
		sessionOptions = append(sessionOptions, WithExpirySkew(opts.ExpirySkew))
	}
	session, err := NewSessionClient(cfg, tokens, disc, dispatcher, sender, sessionOptions...)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	return &Client{web: web, session: session, dispatcher: dispatcher}, nil
}

// Web returns the sign-in facade.
func (c *Client) Web() *WebAuthClient {
	return c.web
}

// Session returns the signed-in session facade.
func (c *Client) Session() *SessionClient {
	return c.session
}

// Close drains and stops the dispatch pool.
func (c *Client) Close() {
	c.dispatcher.Close()
}
