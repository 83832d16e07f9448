package api

import (
	"errors"
	"fmt"
)

// AuthError indicates the bearer token was rejected by the server. It is
// returned on any 401 response.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransientError wraps a failure the next poll tick is expected to recover
// from: connection errors, timeouts, and 5xx responses. Callers swallow these
// silently; polling is the retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure on %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RequestError is a non-transient server rejection (4xx other than 401).
type RequestError struct {
	StatusCode int
	Op         string
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected (%d): %s", e.Op, e.StatusCode, e.Message)
}
