package oauth2

import "fmt"

// Standard OAuth2 error codes a provider may return in an error response
// (RFC 6749 §5.2).
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeAccessDenied         = "access_denied"
)

// OIDC error codes that signal the user must return to the provider and
// authenticate again (OpenID Connect Core §3.1.2.6).
const (
	ErrorCodeLoginRequired       = "login_required"
	ErrorCodeInteractionRequired = "interaction_required"
	ErrorCodeConsentRequired     = "consent_required"
)

// Error is a provider-returned OAuth2 error response:
// {"error": "...", "error_description": "..."}.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("oauth2 error: %s", e.Code)
	}
	return fmt.Sprintf("oauth2 error: %s: %s", e.Code, e.Description)
}

// Is lets callers match against a bare *Error with the same code,
// e.g. errors.Is(err, &oauth2.Error{Code: oauth2.ErrorCodeInvalidGrant}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Description == "" || t.Description == e.Description)
}
