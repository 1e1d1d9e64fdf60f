// Package auth implements the authorization-code flow with PKCE. The Flow
// state machine carries an authorization request across the external browser
// redirect boundary: the request is persisted before the redirect and the
// flow can resume from storage alone, surviving a process restart in
// between.
package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	interrors "github.com/jrsteele09/go-oidc-client/internal/errors"
	"github.com/jrsteele09/go-oidc-client/internal/utils"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/token"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State identifies where the flow is in its lifecycle.
type State string

const (
	StateIdle             State = "Idle"
	StateFetchingMetadata State = "FetchingMetadata"
	StateBuildingRequest  State = "BuildingRequest"
	StateAwaitingRedirect State = "AwaitingRedirect"
	StateExchangingCode   State = "ExchangingCode"
	StateAuthorized       State = "Authorized"
	StateCancelled        State = "Cancelled"
	StateFailed           State = "Failed"
	StateSignedOut        State = "SignedOut"
	StateReauthRequired   State = "ReauthRequired"
)

// terminal reports whether a new sign-in may be started from the state.
func (s State) terminal() bool {
	switch s {
	case StateAuthorized, StateCancelled, StateFailed, StateSignedOut, StateReauthRequired:
		return true
	}
	return false
}

// RedirectResult is what the external redirect collaborator hands back:
// either an authorization code, a provider error, or a cancellation signal.
type RedirectResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	Cancelled        bool
}

// Flow drives one authorization attempt at a time. State transitions are
// strictly sequential; Resume is rejected, not queued, when the flow is not
// awaiting a redirect. All methods are safe for concurrent use.
type Flow struct {
	cfg       *config.Config
	store     *sessions.SecureStore
	discovery *discovery.Service
	tokens    *token.Service
	verifier  IDTokenVerifier
	listener  func(State)

	nowFunc    func() time.Time
	requestTTL time.Duration

	mu    sync.Mutex
	state State

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// FlowOption configures optional Flow behaviour.
type FlowOption func(*Flow)

// WithRequestTTL bounds how long a persisted authorization request remains
// resumable. Zero, the default, means indefinitely.
func WithRequestTTL(ttl time.Duration) FlowOption {
	return func(f *Flow) { f.requestTTL = ttl }
}

// WithIDTokenVerifier enables signature verification of the ID token
// returned by the code exchange.
func WithIDTokenVerifier(verifier IDTokenVerifier) FlowOption {
	return func(f *Flow) { f.verifier = verifier }
}

// WithFlowNowFunc overrides the clock, for tests.
func WithFlowNowFunc(nowFunc func() time.Time) FlowOption {
	return func(f *Flow) { f.nowFunc = nowFunc }
}

// WithStateListener registers a callback invoked on every state transition.
// The callback runs on the flow's goroutine and must not call back into the
// flow.
func WithStateListener(listener func(State)) FlowOption {
	return func(f *Flow) { f.listener = listener }
}

// NewFlow creates an authorization flow. If an authorization request is
// already persisted from a previous process, the flow starts in
// AwaitingRedirect so the pending sign-in can be resumed.
func NewFlow(cfg *config.Config, store *sessions.SecureStore, disc *discovery.Service, tokens *token.Service, options ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, errors.New("[auth.NewFlow] config is required")
	}
	if store == nil {
		return nil, errors.New("[auth.NewFlow] session store is required")
	}
	if disc == nil {
		return nil, errors.New("[auth.NewFlow] discovery service is required")
	}
	if tokens == nil {
		return nil, errors.New("[auth.NewFlow] token service is required")
	}

	flow := &Flow{
		cfg:       cfg,
		store:     store,
		discovery: disc,
		tokens:    tokens,
		nowFunc:   time.Now,
		state:     StateIdle,
	}
	for _, option := range options {
		option(flow)
	}

	if _, err := store.Get(sessions.KeyPendingRequest); err == nil {
		flow.state = StateAwaitingRedirect
		log.Debug().Msg("pending authorization request found, flow resuming in AwaitingRedirect")
	}
	return flow, nil
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start begins a new authorization attempt and returns the provider
// authorization URL to hand to the redirect launcher. The built request is
// persisted before the URL is returned, so a process restart between
// redirect and callback does not lose the attempt.
func (f *Flow) Start(ctx context.Context, payload *Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle && !f.state.terminal() {
		return "", errors.Wrapf(ErrAlreadyInProgress, "[Flow.Start] state %s", f.state)
	}

	ctx, done := f.begin(ctx)
	defer done()

	if f.discovery.Cached() {
		f.setState(StateBuildingRequest)
	} else {
		f.setState(StateFetchingMetadata)
	}
	metadata, err := f.discovery.Metadata(ctx)
	if err != nil {
		return "", f.fail(errors.Wrap(err, "[Flow.Start] fetching provider metadata"))
	}
	if !metadata.SupportsPKCES256() {
		return "", f.fail(&transport.ProtocolError{Reason: "provider does not support the S256 code challenge method"})
	}

	if f.state != StateBuildingRequest {
		f.setState(StateBuildingRequest)
	}
	request, err := newRequest(f.cfg, payload, f.nowFunc())
	if err != nil {
		return "", f.fail(errors.Wrap(err, "[Flow.Start] building authorization request"))
	}
	if err = f.persistRequest(request); err != nil {
		return "", f.fail(err)
	}
	authorizationURL, err := request.AuthorizationURL(metadata, f.cfg)
	if err != nil {
		f.discardPending()
		return "", f.fail(err)
	}

	f.setState(StateAwaitingRedirect)
	log.Debug().Str("request_id", request.ID).Msg("authorization request persisted, awaiting redirect")
	return authorizationURL, nil
}

// Resume completes a pending authorization attempt with the redirect
// outcome. The persisted request is consumed on every terminal path. On
// success the token set is validated against the request nonce, persisted
// and returned.
func (f *Flow) Resume(ctx context.Context, result *RedirectResult) (*token.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAwaitingRedirect {
		return nil, errors.Wrapf(ErrNotAwaitingRedirect, "[Flow.Resume] state %s", f.state)
	}
	if result == nil {
		return nil, errors.Wrap(interrors.ErrInternal, "[Flow.Resume] redirect result is required")
	}

	request, err := f.loadRequest()
	if err != nil {
		return nil, f.fail(err)
	}

	if result.Cancelled {
		f.discardPending()
		f.setState(StateCancelled)
		return nil, errors.Wrap(ErrCancelled, "[Flow.Resume] sign-in abandoned")
	}
	if f.requestTTL > 0 && f.nowFunc().Sub(request.CreatedAt) > f.requestTTL {
		f.discardPending()
		return nil, f.fail(errors.Wrapf(ErrRequestExpired, "[Flow.Resume] request created %s", request.CreatedAt.Format(time.RFC3339)))
	}
	if result.State != request.State {
		f.discardPending()
		return nil, f.fail(errors.WithStack(ErrStateMismatch))
	}
	if result.Error != "" {
		f.discardPending()
		providerErr := &oauth2.Error{Code: result.Error, Description: result.ErrorDescription}
		if reauthRequired(result.Error) {
			f.setState(StateReauthRequired)
			return nil, providerErr
		}
		return nil, f.fail(providerErr)
	}

	f.setState(StateExchangingCode)
	ctx, done := f.begin(ctx)
	defer done()

	response, err := f.tokens.Exchange(ctx, result.Code, request.CodeVerifier)
	if err != nil {
		f.discardPending()
		return nil, f.fail(errors.Wrap(err, "[Flow.Resume] exchanging authorization code"))
	}

	rawIDToken := utils.Value(response.IdToken)
	if rawIDToken == "" {
		f.discardPending()
		return nil, f.fail(&transport.ProtocolError{Reason: "token response is missing an id_token"})
	}
	nonce, err := idTokenNonce(rawIDToken)
	if err != nil {
		f.discardPending()
		return nil, f.fail(err)
	}
	if nonce != request.Nonce {
		f.discardPending()
		return nil, f.fail(errors.WithStack(ErrNonceMismatch))
	}
	if f.verifier != nil {
		if err = f.verifier.Verify(ctx, rawIDToken); err != nil {
			f.discardPending()
			return nil, f.fail(errors.Wrap(err, "[Flow.Resume] verifying id token signature"))
		}
	}

	set, err := token.FromResponse(response, f.nowFunc())
	if err != nil {
		f.discardPending()
		return nil, f.fail(err)
	}
	if err = f.tokens.Save(set); err != nil {
		f.discardPending()
		return nil, f.fail(err)
	}
	f.discardPending()
	f.setState(StateAuthorized)
	log.Debug().Str("request_id", request.ID).Msg("authorization code exchanged, session authorized")
	return set, nil
}

// Cancel cooperatively cancels the flow. An in-flight metadata fetch or
// code exchange has its context cancelled; a flow waiting on a redirect has
// its pending request discarded and moves straight to Cancelled. Cancelling
// an idle or terminal flow is a no-op.
func (f *Flow) Cancel() {
	f.cancelMu.Lock()
	cancel := f.cancel
	f.cancelMu.Unlock()
	if cancel != nil {
		cancel()
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateIdle || f.state.terminal() {
		return
	}
	f.discardPending()
	f.setState(StateCancelled)
}

// SignOut clears the local session: the token set and any pending
// authorization request are removed and the flow moves to SignedOut.
// Provider-side sign-out (the end-session redirect) is the caller's
// concern.
func (f *Flow) SignOut() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.discardPending()
	if err := f.tokens.Clear(); err != nil {
		return f.fail(errors.Wrap(err, "[Flow.SignOut] clearing token set"))
	}
	f.setState(StateSignedOut)
	return nil
}

// begin registers a cancellable context for an in-flight network phase so
// Cancel can abort it without taking the flow mutex.
func (f *Flow) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancelMu.Lock()
	f.cancel = cancel
	f.cancelMu.Unlock()
	return ctx, func() {
		f.cancelMu.Lock()
		f.cancel = nil
		f.cancelMu.Unlock()
		cancel()
	}
}

// fail moves the flow to its failure terminal state and passes the error
// through, mapping context cancellation onto Cancelled.
func (f *Flow) fail(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, interrors.ErrCancelled) {
		f.setState(StateCancelled)
		return errors.Wrap(ErrCancelled, "authorization flow cancelled")
	}
	f.setState(StateFailed)
	return err
}

func (f *Flow) setState(state State) {
	f.state = state
	if f.listener != nil {
		f.listener(state)
	}
}

func (f *Flow) persistRequest(request *Request) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "[Flow.persistRequest] marshalling request")
	}
	if err = f.store.Put(sessions.KeyPendingRequest, payload); err != nil {
		return errors.Wrap(err, "[Flow.persistRequest] persisting request")
	}
	return nil
}

func (f *Flow) loadRequest() (*Request, error) {
	payload, err := f.store.Get(sessions.KeyPendingRequest)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, errors.WithStack(ErrNoPendingRequest)
		}
		return nil, errors.Wrap(err, "[Flow.loadRequest] reading pending request")
	}
	request := &Request{}
	if err = json.Unmarshal(payload, request); err != nil {
		f.discardPending()
		return nil, errors.Wrap(ErrNoPendingRequest, "pending request is unreadable")
	}
	return request, nil
}

func (f *Flow) discardPending() {
	if err := f.store.Delete(sessions.KeyPendingRequest); err != nil {
		log.Warn().Err(err).Msg("failed to discard pending authorization request")
	}
}

func reauthRequired(code string) bool {
	switch code {
	case oauth2.ErrorCodeLoginRequired, oauth2.ErrorCodeInteractionRequired, oauth2.ErrorCodeConsentRequired:
		return true
	}
	return false
}
