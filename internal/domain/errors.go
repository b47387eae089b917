package domain

import "fmt"

// ConfigurationError is a missing required setting. Surfaced as 503 and
// never retried.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required setting: %s", e.Setting)
}

// AuthFlowError rejects an authentication attempt: unknown or expired
// state nonce, missing PKCE verifier, or a provider-reported error.
// The caller must restart sign-in.
type AuthFlowError struct {
	Reason string
}

func (e *AuthFlowError) Error() string {
	return fmt.Sprintf("auth flow rejected: %s", e.Reason)
}

// TokenExchangeError is a refresh or on-behalf-of failure, carrying the
// provider's error code and description verbatim.
type TokenExchangeError struct {
	Code        string
	Description string
}

func (e *TokenExchangeError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("token exchange failed: %s", e.Code)
	}
	return fmt.Sprintf("token exchange failed: %s: %s", e.Code, e.Description)
}

// DownstreamAPIError is a non-2xx response from the mail/calendar API.
type DownstreamAPIError struct {
	Status int
	Body   string
}

func (e *DownstreamAPIError) Error() string {
	return fmt.Sprintf("downstream API error %d: %s", e.Status, e.Body)
}

// ValidationError is a malformed request body or a missing required field.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
