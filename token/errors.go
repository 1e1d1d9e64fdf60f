package token

import "github.com/pkg/errors"

var (
	// ErrNoTokens means no TokenSet is persisted for the session.
	ErrNoTokens = errors.New("no tokens in session")

	// ErrNoRefreshToken means the persisted TokenSet has no refresh token,
	// so the session cannot be refreshed and the user must re-authenticate.
	ErrNoRefreshToken = errors.New("no refresh token in session")

	// ErrRefreshExpired means the provider rejected the refresh token as
	// expired (invalid_grant). Callers must treat this as "re-authenticate";
	// the service itself leaves the stored TokenSet untouched.
	ErrRefreshExpired = errors.New("refresh token expired")
)
