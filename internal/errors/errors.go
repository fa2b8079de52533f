package errors

import (
	"errors"
	"fmt"
)

// Common error types for the frontend
var (
	// Authentication errors
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrMissingIDToken        = errors.New("no id token in token response")
	ErrStateMismatch         = errors.New("state parameter does not match session")
	ErrNonceMismatch         = errors.New("nonce does not match session")
	ErrSubjectMismatch       = errors.New("userinfo subject does not match id token")
	ErrProviderUnavailable   = errors.New("identity provider unavailable")
	ErrUpstreamUnauthorized  = errors.New("upstream rejected credentials")
	ErrMissingRefreshToken   = errors.New("no refresh token in session")
	ErrUnsupportedStrategy   = errors.New("unsupported oidc strategy")
	ErrMissingCodeVerifier   = errors.New("no code verifier in session")
	ErrProviderCallbackError = errors.New("identity provider returned an error")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// S2S errors
	ErrLeaseRejected = errors.New("lease request rejected")
	ErrLeaseNotFound = errors.New("lease not cached")

	// Document errors
	ErrNoDocuments          = errors.New("no documents in session")
	ErrInvalidCaseReference = errors.New("invalid case reference")
	ErrUpstreamFailure      = errors.New("upstream service failure")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// AuthenticationError is raised before the user is redirected to the identity provider,
// typically while generating PKCE material or building the authorization URL.
type AuthenticationError struct {
	Op  string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// CallbackError is raised while handling the identity provider callback: code exchange,
// ID token verification or the user info fetch.
type CallbackError struct {
	Op  string
	Err error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("oauth callback failed during %s: %v", e.Op, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// UpstreamError carries the status and body detail returned by a downstream service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s responded with status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s responded with status %d: %s", e.Service, e.StatusCode, e.Detail)
}

// Is maps 401 responses onto ErrUpstreamUnauthorized and everything else onto ErrUpstreamFailure.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamUnauthorized:
		return e.StatusCode == 401
	case ErrUpstreamFailure:
		return true
	}
	return false
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
