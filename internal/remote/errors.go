package remote

import (
	"errors"
	"fmt"
)

// AuthError means the remote store rejected our credentials (HTTP 401
// or 403). It is never retried automatically: callers must abort the
// current pipeline run and invalidate the session so the user can
// re-authenticate.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote auth rejected (status %d)", e.Status)
	}

	return fmt.Sprintf("remote auth rejected (status %d): %s", e.Status, e.Message)
}

// IsAuth reports whether err (or any error in its chain) is an
// AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// RemoteError is any non-auth provider failure (rate limit, validation,
// transient 5xx). Message carries the provider's own error text.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote request failed (status %d)", e.Status)
	}

	return fmt.Sprintf("remote request failed (status %d): %s", e.Status, e.Message)
}
