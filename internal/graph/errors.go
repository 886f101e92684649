// Package graph provides an HTTP client for the Microsoft Graph API and the
// OAuth2 authorization-code handshake that produces its bearer token. It
// covers the calls the mail pipeline needs: profile, profile photo, drive
// upload, sharing links, and sendMail.
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
	ErrUnexpected   = errors.New("graph: unexpected status")
)

// Sentinel errors for the authorization handshake and request preconditions.
var (
	// ErrAuthMismatch means the state returned to the redirect URI does not
	// match the one issued at login start. No token exchange is attempted.
	ErrAuthMismatch = errors.New("graph: state returned to redirect URI does not match")

	// ErrAuthorizationDenied means the identity provider redirected back with
	// an error parameter instead of a code.
	ErrAuthorizationDenied = errors.New("graph: authorization denied")

	// ErrMissingCode means the callback carried a valid state but no code.
	ErrMissingCode = errors.New("graph: callback missing authorization code")

	// ErrTokenExchange is wrapped by every TokenExchangeError.
	ErrTokenExchange = errors.New("graph: token exchange failed")

	// ErrUnauthenticated means a resource call was attempted without an
	// access token. Returned before any network I/O.
	ErrUnauthenticated = errors.New("graph: not authenticated")

	// ErrMissingField is wrapped by every MissingFieldError.
	ErrMissingField = errors.New("graph: required field missing")
)

// GraphError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// TokenExchangeError reports a failed authorization-code exchange. StatusCode
// is zero when the token endpoint could not be reached at all.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("graph: token exchange failed with HTTP %d: %s", e.StatusCode, e.Body)
	}

	return fmt.Sprintf("graph: token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() []error {
	return []error{ErrTokenExchange, e.Err}
}

// MissingFieldError names the send-mail input that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("graph: required field missing: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		if isSuccess(code) {
			return nil
		}

		return ErrUnexpected
	}
}

// isSuccess reports whether code is in the 2xx class.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
