package dispatch

import (
	"context"

	"github.com/jrsteele09/go-oidc-client/auth"
	interrors "github.com/jrsteele09/go-oidc-client/internal/errors"
	"github.com/jrsteele09/go-oidc-client/oauth2"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/pkg/errors"
)

// ErrorKind is the machine-readable classification delivered alongside a
// terminal error callback.
type ErrorKind string

const (
	// KindNetwork covers transport failures and timeouts.
	KindNetwork ErrorKind = "network"

	// KindProtocol covers malformed discovery or token responses.
	KindProtocol ErrorKind = "protocol"

	// KindOAuth covers provider-returned OAuth2 error codes.
	KindOAuth ErrorKind = "oauth"

	// KindSecurity covers failed state or nonce checks.
	KindSecurity ErrorKind = "security"

	// KindStorage covers session-store failures.
	KindStorage ErrorKind = "storage"

	// KindCancelled marks a cooperatively cancelled operation.
	KindCancelled ErrorKind = "cancelled"

	// KindInternal is everything else.
	KindInternal ErrorKind = "internal"
)

// KindOf classifies an error into its ErrorKind. Cancellation wins over any
// other classification so a cancelled operation is never reported as a
// network failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, interrors.ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, sessions.ErrCipherUnavailable):
		return KindStorage
	}

	var securityErr *auth.SecurityError
	if errors.As(err, &securityErr) {
		return KindSecurity
	}
	var networkErr *transport.NetworkError
	if errors.As(err, &networkErr) {
		return KindNetwork
	}
	var protocolErr *transport.ProtocolError
	if errors.As(err, &protocolErr) {
		return KindProtocol
	}
	var oauthErr *oauth2.Error
	if errors.As(err, &oauthErr) {
		return KindOAuth
	}
	return KindInternal
}
