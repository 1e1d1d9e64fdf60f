package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Service performs token lifecycle operations (exchange, refresh,
// introspect, revoke) for the session owning the given store.
type Service struct {
	cfg       *config.Config
	store     *sessions.SecureStore
	discovery *discovery.Service
	sender    transport.Sender
	nowFunc   func() time.Time

	refreshGroup singleflight.Group
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// NewService creates a token lifecycle service.
func NewService(cfg *config.Config, store *sessions.SecureStore, disc *discovery.Service, sender transport.Sender, options ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("[token.NewService] config is required")
	}
	if store == nil {
		return nil, errors.New("[token.NewService] store is required")
	}
	if disc == nil {
		return nil, errors.New("[token.NewService] discovery service is required")
	}
	if sender == nil {
		return nil, errors.New("[token.NewService] sender is required")
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		discovery: disc,
		sender:    sender,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Current returns the persisted TokenSet, or ErrNoTokens.
func (s *Service) Current() (*TokenSet, error) {
	payload, err := s.store.Get(sessions.KeyTokenSet)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, ErrNoTokens
		}
		return nil, errors.Wrap(err, "[Service.Current] reading token set")
	}

	var set TokenSet
	if err := json.Unmarshal(payload, &set); err != nil {
		return nil, errors.Wrap(err, "[Service.Current] unmarshalling token set")
	}
	if set.AccessToken == "" {
		return nil, ErrNoTokens
	}
	return &set, nil
}

// Save persists a TokenSet, replacing any previous one wholesale.
func (s *Service) Save(set *TokenSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "[Service.Save] marshalling token set")
	}
	return s.store.Put(sessions.KeyTokenSet, payload)
}

// Clear removes the persisted TokenSet.
func (s *Service) Clear() error {
	return s.store.Delete(sessions.KeyTokenSet)
}

// IsAccessTokenExpired reports whether the persisted access token is expired
// at the current instant, allowing for the given clock skew. Fails with
// ErrNoTokens when no TokenSet is persisted.
func (s *Service) IsAccessTokenExpired(skew time.Duration) (bool, error) {
	set, err := s.Current()
	if err != nil {
		return false, err
	}
	return set.IsExpired(s.nowFunc(), skew), nil
}

// Exchange performs the authorization_code grant. No client secret is sent:
// the engine is a public client and PKCE carries the proof. The caller
// (AuthorizationFlow) decides whether to persist the result, since nonce
// validation happens above this layer.
func (s *Service) Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.TokenResponse, error) {
	return s.postToken(ctx, url.Values{
		"grant_type":    {string(oauth2.AuthorizationCodeGrant)},
		"code":          {code},
		"redirect_uri":  {s.cfg.RedirectURI},
		"client_id":     {s.cfg.ClientID},
		"code_verifier": {codeVerifier},
	})
}

// Refresh exchanges the stored refresh token for a new TokenSet and persists
// it wholesale. Concurrent callers are coalesced onto a single
// token-endpoint request; all receive the same resulting TokenSet. If the
// provider omits a rotated refresh token, the previous one is retained.
func (s *Service) Refresh(ctx context.Context) (*TokenSet, error) {
	result, err, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TokenSet), nil
}

func (s *Service) refresh(ctx context.Context) (*TokenSet, error) {
	current, err := s.Current()
	if err != nil {
		return nil, err
	}
	if !current.HasRefreshToken() {
		return nil, ErrNoRefreshToken
	}

	resp, err := s.postToken(ctx, url.Values{
		"grant_type":    {string(oauth2.RefreshTokenCodeGrant)},
		"refresh_token": {current.RefreshToken},
		"client_id":     {s.cfg.ClientID},
		"scope":         {s.cfg.ScopeString()},
	})
	if err != nil {
		var oauthErr *oauth2.Error
		if errors.As(err, &oauthErr) && isRefreshExpired(oauthErr) {
			return nil, errors.Wrap(ErrRefreshExpired, oauthErr.Error())
		}
		return nil, err
	}

	refreshed, err := FromResponse(resp, s.nowFunc())
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		// Provider did not rotate; keep the refresh token we have.
		refreshed.RefreshToken = current.RefreshToken
	}
	if err := s.Save(refreshed); err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] persisting refreshed token set")
	}

	log.Debug().
		Time("expires_at", refreshed.ExpiresAt()).
		Bool("rotated_refresh_token", refreshed.RefreshToken != current.RefreshToken).
		Msg("token set refreshed")
	return refreshed, nil
}

// Introspect queries the introspection endpoint for the given token. It is
// stateless: the persisted TokenSet is not consulted or mutated.
func (s *Service) Introspect(ctx context.Context, rawToken string, hint oauth2.TokenTypeHint) (*oauth2.IntrospectionResponse, error) {
	metadata, err := s.discovery.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if metadata.IntrospectionEndpoint == "" {
		return nil, &transport.ProtocolError{Reason: "provider does not advertise an introspection endpoint"}
	}

	status, body, err := transport.PostForm(ctx, s.sender, metadata.IntrospectionEndpoint, url.Values{
		"token":           {rawToken},
		"token_type_hint": {string(hint)},
		"client_id":       {s.cfg.ClientID},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, asOAuthError(status, body)
	}

	var introspection oauth2.IntrospectionResponse
	if err := json.Unmarshal(body, &introspection); err != nil {
		return nil, &transport.ProtocolError{Reason: "malformed introspection response", Err: err}
	}
	return &introspection, nil
}

// Revoke asks the provider to revoke the given token. Any 2xx is success.
// The persisted TokenSet is deliberately left alone so access- and
// refresh-token revocation can be issued independently; clearing local state
// is the caller's decision.
func (s *Service) Revoke(ctx context.Context, rawToken string, hint oauth2.TokenTypeHint) error {
	metadata, err := s.discovery.Metadata(ctx)
	if err != nil {
		return err
	}
	if metadata.RevocationEndpoint == "" {
		return &transport.ProtocolError{Reason: "provider does not advertise a revocation endpoint"}
	}

	status, body, err := transport.PostForm(ctx, s.sender, metadata.RevocationEndpoint, url.Values{
		"token":           {rawToken},
		"token_type_hint": {string(hint)},
		"client_id":       {s.cfg.ClientID},
	})
	if err != nil {
		return err
	}
	if status < http.StatusOK || status >= 300 {
		return asOAuthError(status, body)
	}
	return nil
}

func (s *Service) postToken(ctx context.Context, form url.Values) (*oauth2.TokenResponse, error) {
	metadata, err := s.discovery.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := transport.PostForm(ctx, s.sender, metadata.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, asOAuthError(status, body)
	}

	var resp oauth2.TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &transport.ProtocolError{Reason: "malformed token response", Err: err}
	}
	return &resp, nil
}

// asOAuthError decodes a provider error body, falling back to a protocol
// error when the body is not a recognizable OAuth2 error response.
func asOAuthError(status int, body []byte) error {
	var oauthErr oauth2.Error
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Code != "" {
		return &oauthErr
	}
	return &transport.ProtocolError{
		Reason: errors.Errorf("unexpected HTTP %d from provider", status).Error(),
	}
}

func isRefreshExpired(oauthErr *oauth2.Error) bool {
	if oauthErr.Code != oauth2.ErrorCodeInvalidGrant {
		return false
	}
	desc := strings.ToLower(oauthErr.Description)
	return strings.Contains(desc, "expire") || strings.Contains(desc, "invalid refresh")
}
