package authclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionInvalid is the cause carried by RefreshFailedError for requests
// that fail authentication after the session was invalidated and before a new
// login. No refresh is attempted for them.
var ErrSessionInvalid = errors.New("authclient: session invalid, login required")

// ErrDotSegment rejects a relative request URL with "." or ".." path
// segments, which could resolve outside the base URL.
var ErrDotSegment = errors.New("authclient: dot segment in request path")

// TransportError reports a request that never produced a response. It never
// triggers a refresh.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthExpiredError is a response classified as a credential problem: a 401,
// or a 403 whose message names an expired or invalid credential.
type AuthExpiredError struct {
	StatusCode int
	Message    string
	Header     http.Header
	Body       []byte
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("credential rejected with status %d: %s", e.StatusCode, e.Message)
}

// AuthPermissionError is a 403 unrelated to credential freshness. It is
// returned as is and never triggers a refresh.
type AuthPermissionError struct {
	StatusCode int
	Message    string
	Header     http.Header
	Body       []byte
}

func (e *AuthPermissionError) Error() string {
	return fmt.Sprintf("permission denied with status %d: %s", e.StatusCode, e.Message)
}

// RefreshFailedError is returned to the request that started a refresh and to
// every request queued behind it when the refresh fails. The session is
// invalid afterwards.
type RefreshFailedError struct {
	// Err is the refresher's error, or ErrSessionInvalid.
	Err error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// ReplayFailedError is returned when a request replayed with a refreshed
// credential is still rejected.
type ReplayFailedError struct {
	Method string
	URL    string
	Err    *AuthExpiredError
}

func (e *ReplayFailedError) Error() string {
	return fmt.Sprintf("replay of %s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *ReplayFailedError) Unwrap() error {
	return e.Err
}
