package auth

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/discovery"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/pkg/errors"
)

// Payload carries caller-supplied additions to a sign-in request: extra
// scopes, a login hint for the provider's account chooser, and arbitrary
// additional authorization parameters.
type Payload struct {
	LoginHint   string
	ExtraScopes []string
	ExtraParams map[string]string
}

// Request is one in-flight authorization attempt. It is persisted before
// the redirect boundary so the flow can resume after process teardown, and
// consumed exactly once on resume. The shape is JSON-stable because it
// round-trips through the encrypted session store.
type Request struct {
	ID            string            `json:"id"`
	CodeVerifier  string            `json:"code_verifier"`
	CodeChallenge string            `json:"code_challenge"`
	State         string            `json:"state"`
	Nonce         string            `json:"nonce"`
	Scopes        []string          `json:"scopes"`
	LoginHint     string            `json:"login_hint,omitempty"`
	ExtraParams   map[string]string `json:"extra_params,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// newRequest assembles a Request from freshly generated PKCE/state/nonce
// values merged with the caller payload.
func newRequest(cfg *config.Config, payload *Payload, now time.Time) (*Request, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, errors.Wrap(err, "[auth.newRequest] generating state")
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, errors.Wrap(err, "[auth.newRequest] generating nonce")
	}

	request := &Request{
		ID:            uuid.New().String(),
		CodeVerifier:  pkce.Verifier,
		CodeChallenge: pkce.Challenge,
		State:         state,
		Nonce:         nonce,
		Scopes:        cfg.Scopes,
		CreatedAt:     now,
	}
	if payload != nil {
		request.Scopes = cfg.MergeScopes(payload.ExtraScopes)
		request.LoginHint = payload.LoginHint
		if len(payload.ExtraParams) > 0 {
			request.ExtraParams = make(map[string]string, len(payload.ExtraParams))
			for k, v := range payload.ExtraParams {
				request.ExtraParams[k] = v
			}
		}
	}
	return request, nil
}

// AuthorizationURL builds the provider authorization URL for this request.
func (r *Request) AuthorizationURL(metadata *discovery.ProviderMetadata, cfg *config.Config) (string, error) {
	endpoint, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return "", errors.Wrap(err, "[Request.AuthorizationURL] parsing authorization endpoint")
	}

	params := url.Values{
		"response_type":         {string(oauth2.CodeResponseType)},
		"client_id":             {cfg.ClientID},
		"redirect_uri":          {cfg.RedirectURI},
		"scope":                 {scopeString(r.Scopes)},
		"state":                 {r.State},
		"nonce":                 {r.Nonce},
		"code_challenge":        {r.CodeChallenge},
		"code_challenge_method": {string(oauth2.CodeMethodTypeS256)},
	}
	if r.LoginHint != "" {
		params.Set("login_hint", r.LoginHint)
	}
	// Extra parameters never override the protocol-critical ones above.
	for key, value := range r.ExtraParams {
		if params.Has(key) {
			continue
		}
		params.Set(key, value)
	}

	endpoint.RawQuery = params.Encode()
	return endpoint.String(), nil
}

func scopeString(scopes []string) string {
	return strings.Join(scopes, " ")
}
