package goDocs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the backend rejects a request for authentication
	// and recovery through refresh is not possible (no token, refresh failed, or the
	// replayed request was rejected again). Callers should force a new login.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionExpired is returned when the refresh endpoint explicitly rejects the
	// refresh credential. The stored token has been cleared when this is returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrServer marks 5xx responses. They are transient and safe to retry by the caller.
	ErrServer = errors.New("server error")
	// ErrClient marks 4xx responses other than 401.
	ErrClient = errors.New("client error")
	// ErrNetwork marks transport failures where no response was received.
	ErrNetwork = errors.New("network error")
	// ErrClientNotReady is returned by methods called on a nil or closed Client.
	ErrClientNotReady = errors.New("client not initialized")
	// ErrInvalidPath is returned when a request path is absolute or empty.
	ErrInvalidPath = errors.New("invalid request path")
)

// ErrorKind classifies an APIError.
type ErrorKind uint8

const (
	KindUnauthorized ErrorKind = iota + 1
	KindSessionExpired
	KindServer
	KindClient
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindSessionExpired:
		return "session_expired"
	case KindServer:
		return "server_error"
	case KindClient:
		return "client_error"
	case KindNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindSessionExpired:
		return ErrSessionExpired
	case KindServer:
		return ErrServer
	case KindClient:
		return ErrClient
	case KindNetwork:
		return ErrNetwork
	default:
		return nil
	}
}

// APIError is the error type surfaced by Client requests.
//
// errors.Is(err, ErrServer) and friends match on Kind, so callers can branch on the
// taxonomy without type assertions. Message carries the server payload's "message"
// field when one was present.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Method  string
	Path    string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Kind.String()
	if e.Method != "" || e.Path != "" {
		msg += " (" + e.Method + " " + e.Path + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind. A session-expired error
// also matches ErrUnauthorized: both mean the caller must log in again.
func (e *APIError) Is(target error) bool {
	if s := e.Kind.sentinel(); s != nil && target == s {
		return true
	}
	return e.Kind == KindSessionExpired && target == ErrUnauthorized
}

// KindOf returns the ErrorKind of err, or 0 when err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func newAPIError(kind ErrorKind, status int, message, method, path string, cause error) *APIError {
	return &APIError{
		Kind:    kind,
		Status:  status,
		Message: message,
		Method:  method,
		Path:    path,
		Err:     cause,
	}
}

// kindForStatus maps a non-2xx HTTP status onto the taxonomy.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401:
		return KindUnauthorized
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindClient
	default:
		return 0
	}
}
