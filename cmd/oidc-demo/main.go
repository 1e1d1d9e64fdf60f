package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-client/auth"
	"github.com/jrsteele09/go-oidc-client/client"
	"github.com/jrsteele09/go-oidc-client/config"
	envconfig "github.com/jrsteele09/go-oidc-client/internal/config"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("oidc-demo failed")
	}
	log.Info().Msg("oidc-demo stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	envconfig.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	env := envconfig.EnvVars{}
	displayAppname(env.GetAppName())

	cfg, err := config.New(env.GetIssuer(), env.GetClientID(), env.GetRedirectURI(), env.GetScopes())
	if err != nil {
		return err
	}
	cfg.EndSessionRedirectURI = env.GetEndSessionRedirectURI()

	engine, err := assemble(cfg, env)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = signIn(ctx, engine); err != nil {
		return err
	}

	log.Info().Msg("press Ctrl-C to sign out and exit")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err = engine.Web().SignOutSync(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sign-out did not complete cleanly")
	}
	return nil
}

func assemble(cfg *config.Config, env envconfig.EnvVars) (*client.Client, error) {
	fileStore, err := sessions.NewFileStore(env.GetDataFolder())
	if err != nil {
		return nil, err
	}
	store, err := sessions.NewSecureStore(fileStore, newCipher(env))
	if err != nil {
		return nil, err
	}

	opts := client.Options{
		Store: store,
		Sender: transport.New(
			transport.WithConnectTimeout(10*time.Second),
			transport.WithReadTimeout(30*time.Second),
		),
		RequestTTL: 10 * time.Minute,
	}

	verifierCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if verifier, err := auth.NewOIDCVerifier(verifierCtx, cfg.Issuer, cfg.ClientID); err == nil {
		opts.Verifier = verifier
	} else {
		log.Warn().Err(err).Msg("id token signature verification disabled")
	}

	return client.New(cfg, opts)
}

// newCipher prefers a key held in the OS keyring, falling back to a
// passphrase from the environment when no keyring is available.
func newCipher(env envconfig.EnvVars) sessions.Cipher {
	salt := []byte(env.GetKeyringService())

	if provider, err := sessions.NewKeyringProvider(env.GetKeyringService(), "session-key"); err == nil {
		if _, err = provider.Key(); err == nil {
			if cipher, err := sessions.NewAESGCMCipher(provider, salt); err == nil {
				return cipher
			}
		}
	}
	log.Warn().Msg("OS keyring unavailable, deriving session key from SESSION_PASSPHRASE")
	passphrase := envconfig.GetEnv("SESSION_PASSPHRASE", "insecure-dev-passphrase")
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider(passphrase), salt)
	if err != nil {
		log.Fatal().Err(err).Msg("building session cipher")
	}
	return cipher
}

func signIn(ctx context.Context, engine *client.Client) error {
	if engine.Session().IsAuthenticated() {
		log.Info().Msg("existing session found, skipping sign-in")
		return showProfile(ctx, engine)
	}
	if engine.Web().IsInProgress() {
		// A previous run died mid sign-in; discard its pending attempt.
		engine.Web().Cancel()
	}

	set, err := engine.Web().SignInSync(ctx, nil)
	if err != nil {
		return err
	}
	log.Info().Time("expires_at", set.ExpiresAt()).Msg("signed in")
	return showProfile(ctx, engine)
}

func showProfile(ctx context.Context, engine *client.Client) error {
	profile, err := engine.Session().GetUserProfile(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not fetch user profile")
		return nil
	}
	log.Info().Str("sub", profile.Subject()).Msg("signed-in user")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
