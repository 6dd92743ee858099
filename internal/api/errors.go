package api

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationMissing means there is no session at all: no
	// refresh token was available when an authorization failure arrived.
	ErrAuthenticationMissing = errors.New("authentication missing")

	// ErrRefreshFailed means the refresh call itself failed. Credentials
	// are cleared and the caller must treat the session as gone.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// StatusError carries a non-2xx backend response to the caller untouched.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}

// IsUnauthorized reports whether err is an authorization failure from the
// backend.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 401
}
