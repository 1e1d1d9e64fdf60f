package auth

import (
	"fmt"

	interrors "github.com/jrsteele09/go-oidc-client/internal/errors"
	"github.com/pkg/errors"
)

var (
	// ErrAlreadyInProgress is returned by Start when a flow is between
	// Start and a terminal state.
	ErrAlreadyInProgress = errors.New("authorization flow already in progress")

	// ErrNoPendingRequest is returned by Resume when no authorization
	// request is persisted.
	ErrNoPendingRequest = errors.New("no pending authorization request")

	// ErrRequestExpired is returned by Resume when the persisted request
	// outlived the configured TTL.
	ErrRequestExpired = errors.New("pending authorization request expired")

	// ErrNotAwaitingRedirect is returned by Resume when the flow is not
	// waiting on a redirect. Resume is rejected rather than queued.
	ErrNotAwaitingRedirect = errors.New("authorization flow is not awaiting a redirect")

	// ErrCancelled is returned when the user abandoned the flow.
	ErrCancelled = interrors.ErrCancelled
)

// SecurityError marks a failed-closed security check. Token values are
// never included in the message.
type SecurityError struct {
	Check string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security check failed: %s", e.Check)
}

var (
	// ErrStateMismatch means the state on the redirect response did not
	// match the persisted request. The pending request is discarded.
	ErrStateMismatch = &SecurityError{Check: "authorization state mismatch"}

	// ErrNonceMismatch means the ID token's nonce did not match the
	// persisted request. The token set is not accepted.
	ErrNonceMismatch = &SecurityError{Check: "id token nonce mismatch"}
)
