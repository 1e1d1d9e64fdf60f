package client

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	"github.com/jrsteele09/go-oidc-client/dispatch"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/jrsteele09/go-oidc-client/token"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

const defaultExpirySkew = 30 * time.Second

// UserProfile is the decoded userinfo response.
type UserProfile map[string]any

// Subject returns the "sub" claim.
func (p UserProfile) Subject() string {
	sub, _ := p["sub"].(string)
	return sub
}

// SessionClient operates on the signed-in session. Refresh reacts to
// token.ErrRefreshExpired structurally: the stored token set is cleared so
// the application sees a signed-out session and re-authenticates.
type SessionClient struct {
	cfg        *config.Config
	tokens     *token.Service
	discovery  *discovery.Service
	dispatcher *dispatch.Dispatcher
	sender     transport.Sender
	skew       time.Duration
}

// SessionOption configures a SessionClient.
type SessionOption func(*SessionClient)

// WithExpirySkew sets how early an access token is treated as expired.
func WithExpirySkew(skew time.Duration) SessionOption {
	return func(c *SessionClient) { c.skew = skew }
}

// NewSessionClient assembles the session facade.
func NewSessionClient(cfg *config.Config, tokens *token.Service, disc *discovery.Service, dispatcher *dispatch.Dispatcher, sender transport.Sender, options ...SessionOption) (*SessionClient, error) {
	if cfg == nil || tokens == nil || disc == nil || dispatcher == nil || sender == nil {
		return nil, errors.New("[client.NewSessionClient] all collaborators are required")
	}
	c := &SessionClient{
		cfg:        cfg,
		tokens:     tokens,
		discovery:  disc,
		dispatcher: dispatcher,
		sender:     sender,
		skew:       defaultExpirySkew,
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Tokens returns the stored token set, or token.ErrNoTokens.
func (c *SessionClient) Tokens() (*token.TokenSet, error) {
	return c.tokens.Current()
}

// IsAuthenticated reports whether a token set is stored and still usable:
// either the access token is fresh or a refresh token can renew it.
func (c *SessionClient) IsAuthenticated() bool {
	set, err := c.tokens.Current()
	if err != nil {
		return false
	}
	return !set.IsExpired(time.Now(), c.skew) || set.HasRefreshToken()
}

// Refresh renews the token set off the caller's goroutine.
func (c *SessionClient) Refresh(ctx context.Context, callbacks dispatch.Callbacks[*token.TokenSet]) *dispatch.Handle {
	return dispatch.Submit(c.dispatcher, ctx, c.refresh, callbacks)
}

// RefreshSync renews the token set and blocks until done.
func (c *SessionClient) RefreshSync(ctx context.Context) (*token.TokenSet, error) {
	return dispatch.Await(c.dispatcher, ctx, c.refresh)
}

func (c *SessionClient) refresh(ctx context.Context) (*token.TokenSet, error) {
	set, err := c.tokens.Refresh(ctx)
	if err != nil {
		if errors.Is(err, token.ErrRefreshExpired) {
			// The session is unrecoverable, drop it so the caller
			// re-authenticates against an empty session.
			if clearErr := c.tokens.Clear(); clearErr != nil {
				log.Warn().Err(clearErr).Msg("failed to clear expired session")
			}
		}
		return nil, err
	}
	return set, nil
}

// IntrospectAccessToken asks the provider whether the stored access token is
// active.
func (c *SessionClient) IntrospectAccessToken(ctx context.Context) (*oauth2.IntrospectionResponse, error) {
	return dispatch.Await(c.dispatcher, ctx, func(ctx context.Context) (*oauth2.IntrospectionResponse, error) {
		set, err := c.tokens.Current()
		if err != nil {
			return nil, err
		}
		return c.tokens.Introspect(ctx, set.AccessToken, oauth2.HintAccessToken)
	})
}

// IntrospectRefreshToken asks the provider whether the stored refresh token
// is active.
func (c *SessionClient) IntrospectRefreshToken(ctx context.Context) (*oauth2.IntrospectionResponse, error) {
	return dispatch.Await(c.dispatcher, ctx, func(ctx context.Context) (*oauth2.IntrospectionResponse, error) {
		set, err := c.tokens.Current()
		if err != nil {
			return nil, err
		}
		if !set.HasRefreshToken() {
			return nil, errors.WithStack(token.ErrNoRefreshToken)
		}
		return c.tokens.Introspect(ctx, set.RefreshToken, oauth2.HintRefreshToken)
	})
}

// RevokeAccessToken revokes the stored access token at the provider. The
// stored token set is left in place; revocation of one token does not imply
// the session is over.
func (c *SessionClient) RevokeAccessToken(ctx context.Context) error {
	_, err := dispatch.Await(c.dispatcher, ctx, func(ctx context.Context) (struct{}, error) {
		set, err := c.tokens.Current()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.tokens.Revoke(ctx, set.AccessToken, oauth2.HintAccessToken)
	})
	return err
}

// RevokeRefreshToken revokes the stored refresh token at the provider.
func (c *SessionClient) RevokeRefreshToken(ctx context.Context) error {
	_, err := dispatch.Await(c.dispatcher, ctx, func(ctx context.Context) (struct{}, error) {
		set, err := c.tokens.Current()
		if err != nil {
			return struct{}{}, err
		}
		if !set.HasRefreshToken() {
			return struct{}{}, errors.WithStack(token.ErrNoRefreshToken)
		}
		return struct{}{}, c.tokens.Revoke(ctx, set.RefreshToken, oauth2.HintRefreshToken)
	})
	return err
}

// Clear drops the stored token set without contacting the provider.
func (c *SessionClient) Clear() error {
	return c.tokens.Clear()
}

// GetUserProfile fetches the userinfo document with the current access
// token, refreshing it first if it has expired.
func (c *SessionClient) GetUserProfile(ctx context.Context) (UserProfile, error) {
	return dispatch.Await(c.dispatcher, ctx, c.userProfile)
}

// GetUserProfileAsync fetches the userinfo document off the caller's
// goroutine.
func (c *SessionClient) GetUserProfileAsync(ctx context.Context, callbacks dispatch.Callbacks[UserProfile]) *dispatch.Handle {
	return dispatch.Submit(c.dispatcher, ctx, c.userProfile, callbacks)
}

func (c *SessionClient) userProfile(ctx context.Context) (UserProfile, error) {
	metadata, err := c.discovery.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if metadata.UserinfoEndpoint == "" {
		return nil, &transport.ProtocolError{Reason: "provider does not advertise a userinfo endpoint"}
	}
	set, err := c.freshTokens(ctx)
	if err != nil {
		return nil, err
	}

	profile := UserProfile{}
	if err = transport.GetJSONAuthorized(ctx, c.sender, metadata.UserinfoEndpoint, set.AccessToken, &profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// freshTokens returns the stored token set, refreshing it when the access
// token is within the expiry skew.
func (c *SessionClient) freshTokens(ctx context.Context) (*token.TokenSet, error) {
	set, err := c.tokens.Current()
	if err != nil {
		return nil, err
	}
	if !set.IsExpired(time.Now(), c.skew) {
		return set, nil
	}
	if !set.HasRefreshToken() {
		return nil, errors.WithStack(token.ErrNoRefreshToken)
	}
	return c.refresh(ctx)
}

// TokenSource adapts the session to golang.org/x/oauth2, so the stored
// credentials can authenticate arbitrary outbound HTTP clients. Tokens are
// refreshed through the engine, never by the x/oauth2 machinery itself.
func (c *SessionClient) TokenSource(ctx context.Context) xoauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, client: c}
}

type sessionTokenSource struct {
	ctx    context.Context
	client *SessionClient
}

func (ts *sessionTokenSource) Token() (*xoauth2.Token, error) {
	set, err := ts.client.freshTokens(ts.ctx)
	if err != nil {
		return nil, err
	}
	return set.ToOAuth2Token(), nil
}
