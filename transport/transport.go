// Package transport is the HTTP collaborator boundary of the engine. The
// core only depends on the Sender interface; the default Client adds
// per-class timeouts and an opt-in retry policy for idempotent requests.
// Retry never happens above this layer.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
)

// UserAgent identifies the engine on the wire.
const UserAgent = "go-oidc-client/1.0"

const maxResponseBytes = 1 << 20 // cap provider responses at 1MB

// Sender sends a single HTTP request. *http.Client satisfies it.
type Sender interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the default Sender used by the engine.
type Client struct {
	httpClient *http.Client
	retry      func() backoff.BackOff
	maxTries   uint
}

// Option configures the Client.
type Option func(*Client)

// WithConnectTimeout bounds connection establishment (TCP + TLS handshake).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		transport := c.transport()
		transport.DialContext = (&net.Dialer{Timeout: d}).DialContext
		transport.TLSHandshakeTimeout = d
	}
}

// WithReadTimeout bounds the wait for response headers and overall request time.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.transport().ResponseHeaderTimeout = d
		c.httpClient.Timeout = d
	}
}

// WithRetryPolicy enables retries for idempotent GET requests. The factory is
// invoked per request so each attempt sequence gets a fresh backoff schedule.
// POSTs (token, introspection, revocation) are never retried here.
func WithRetryPolicy(factory func() backoff.BackOff, maxTries uint) Option {
	return func(c *Client) {
		c.retry = factory
		c.maxTries = maxTries
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates the default transport client.
func New(options ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) transport() *http.Transport {
	t, ok := c.httpClient.Transport.(*http.Transport)
	if !ok {
		t = &http.Transport{}
		c.httpClient.Transport = t
	}
	return t
}

// Do implements Sender. GETs go through the retry policy when one is
// configured; everything else is sent exactly once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", UserAgent)

	if c.retry == nil || req.Method != http.MethodGet {
		return c.httpClient.Do(req)
	}

	operation := func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			_ = resp.Body.Close()
			return nil, errors.Errorf("server returned HTTP %d", resp.StatusCode)
		}
		return resp, nil
	}

	return backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(c.retry()),
		backoff.WithMaxTries(c.maxTries),
	)
}

// GetJSON performs a GET and decodes a JSON body into out.
func GetJSON(ctx context.Context, sender Sender, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "[transport.GetJSON] building request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := sender.Do(req)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProtocolError{Reason: errors.Errorf("GET %s: HTTP %d", rawURL, resp.StatusCode).Error()}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return &ProtocolError{Reason: "malformed JSON response", Err: err}
	}
	return nil
}

// GetJSONAuthorized performs a bearer-authorized GET and decodes a JSON body
// into out. A 401 or 403 is reported as a ProtocolError carrying the status.
func GetJSONAuthorized(ctx context.Context, sender Sender, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "[transport.GetJSONAuthorized] building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := sender.Do(req)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProtocolError{Reason: errors.Errorf("GET %s: HTTP %d", rawURL, resp.StatusCode).Error()}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return &ProtocolError{Reason: "malformed JSON response", Err: err}
	}
	return nil
}

// PostForm performs a form-encoded POST and returns the status code plus the
// raw body. OAuth2-level error decoding is the caller's concern; only
// transport failures are mapped here.
func PostForm(ctx context.Context, sender Sender, rawURL string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, errors.Wrap(err, "[transport.PostForm] building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := sender.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &NetworkError{URL: rawURL, Err: err}
	}
	return resp.StatusCode, body, nil
}
