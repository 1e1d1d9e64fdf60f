// Package redirect is the external-browser collaborator: it launches the
// system browser at the provider's authorization URL and runs a loopback
// HTTP server that receives the redirect back. The engine treats this
// boundary as opaque; everything it needs to resume is persisted before the
// browser ever opens.
package redirect

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-client/auth"
	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Launcher hands a URL to the user's browser.
type Launcher interface {
	Launch(url string) error
}

// BrowserLauncher opens URLs in the system default browser.
type BrowserLauncher struct{}

func (BrowserLauncher) Launch(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return errors.Wrap(err, "[BrowserLauncher.Launch] opening browser")
	}
	return nil
}

const (
	readHeaderTimeout = 10 * time.Second
	drainDelay        = time.Second
	shutdownTimeout   = 5 * time.Second
)

const signInLandingPage = `<!DOCTYPE html>
<html><head><title>Sign-in complete</title></head>
<body><h1>Sign-in complete</h1><p>You can close this window and return to the application.</p></body></html>`

const signInFailedPage = `<!DOCTYPE html>
<html><head><title>Sign-in failed</title></head>
<body><h1>Sign-in failed</h1><p>The provider reported an error. You can close this window.</p></body></html>`

const signOutLandingPage = `<!DOCTYPE html>
<html><head><title>Signed out</title></head>
<body><h1>Signed out</h1><p>You can close this window.</p></body></html>`

// CallbackServer is a loopback HTTP server bound to the configured redirect
// URI. It accepts a single authorization redirect, surfaces it through
// WaitForResult and then shuts down. If the end-session redirect URI shares
// the same authority, its path is served too so browser sign-out completes
// against the same listener.
type CallbackServer struct {
	host         string
	callbackPath string
	signOutPath  string

	server   *http.Server
	listener net.Listener
	results  chan *auth.RedirectResult
	errs     chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer builds a server for the config's redirect URI. The URI
// must be a loopback address; public redirect URIs belong to hosted apps,
// not a local listener.
func NewCallbackServer(cfg *config.Config) (*CallbackServer, error) {
	redirectURL, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[redirect.NewCallbackServer] parsing redirect URI")
	}
	if !isLoopback(redirectURL.Hostname()) {
		return nil, errors.Errorf("[redirect.NewCallbackServer] redirect URI host %q is not a loopback address", redirectURL.Hostname())
	}

	s := &CallbackServer{
		host:         redirectURL.Host,
		callbackPath: pathOrRoot(redirectURL),
		results:      make(chan *auth.RedirectResult, 1),
		errs:         make(chan error, 1),
	}

	if cfg.EndSessionRedirectURI != "" {
		endSessionURL, err := url.Parse(cfg.EndSessionRedirectURI)
		if err != nil {
			return nil, errors.Wrap(err, "[redirect.NewCallbackServer] parsing end-session redirect URI")
		}
		if endSessionURL.Host == redirectURL.Host {
			s.signOutPath = pathOrRoot(endSessionURL)
		}
	}
	return s, nil
}

func isLoopback(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

func pathOrRoot(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// Start binds the listener and begins serving. The server stops when the
// context is cancelled, after the first callback, or on Stop.
func (s *CallbackServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.host)
	if err != nil {
		return errors.Wrapf(err, "[CallbackServer.Start] listening on %s", s.host)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.callbackPath, s.handleCallback)
	if s.signOutPath != "" && s.signOutPath != s.callbackPath {
		mux.HandleFunc(s.signOutPath, s.handleSignOut)
	}

	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errs <- errors.Wrap(err, "[CallbackServer] serving"):
			default:
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	log.Debug().Str("addr", listener.Addr().String()).Msg("redirect callback server listening")
	return nil
}

// WaitForResult blocks until the authorization redirect arrives. Context
// cancellation is reported as an abandoned sign-in rather than an error, so
// callers can feed the result straight into the flow.
func (s *CallbackServer) WaitForResult(ctx context.Context) (*auth.RedirectResult, error) {
	select {
	case result := <-s.results:
		return result, nil
	case err := <-s.errs:
		return nil, err
	case <-ctx.Done():
		return &auth.RedirectResult{Cancelled: true}, nil
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	delivered := false
	s.once.Do(func() {
		delivered = true
		query := r.URL.Query()
		result := &auth.RedirectResult{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}

		writeSecurityHeaders(w)
		if result.Error != "" {
			_, _ = w.Write([]byte(signInFailedPage))
		} else {
			_, _ = w.Write([]byte(signInLandingPage))
		}

		select {
		case s.results <- result:
		default:
		}

		// Let the response drain before tearing the listener down.
		go func() {
			time.Sleep(drainDelay)
			s.Stop()
		}()
	})
	if !delivered {
		http.Error(w, "callback already processed", http.StatusConflict)
	}
}

func (s *CallbackServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	writeSecurityHeaders(w)
	_, _ = w.Write([]byte(signOutLandingPage))

	select {
	case s.results <- &auth.RedirectResult{State: r.URL.Query().Get("state")}:
	default:
	}
}

func writeSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

// Addr returns the bound listener address, valid after Start.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
