package oauth2

// IntrospectionResponse represents the metadata returned by an OAuth 2.0
// introspection endpoint (RFC 7662). The 'active' field indicates the state
// of the token - if it's false, other fields may not be populated.
type IntrospectionResponse struct {
	Active   bool    `json:"active"`              // Is the token currently valid
	Scope    string  `json:"scope,omitempty"`     // Space-separated granted scopes
	ClientID *string `json:"client_id,omitempty"` // Client the token was issued to
	Username *string `json:"username,omitempty"`  // Human-readable subject identifier
	Exp      *int64  `json:"exp,omitempty"`       // Expiration (unix seconds)
	Iat      *int64  `json:"iat,omitempty"`       // Issued at (unix seconds)
	Iss      *string `json:"iss,omitempty"`       // Issuer of the token
	Sub      *string `json:"sub,omitempty"`       // Subject's unique ID
	Aud      *string `json:"aud,omitempty"`       // Audience
	TokenUse *string `json:"token_use,omitempty"` // Provider-specific token class
}
