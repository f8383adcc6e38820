// Package aurum provides a Go client for the Aurum chatbot API.
package aurum

import (
	"errors"
	"fmt"
)

// Error represents an error from the Aurum API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("aurum: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	return hasStatus(err, 404)
}

// IsInvalidInput returns true if the error is a 400.
func IsInvalidInput(err error) bool {
	return hasStatus(err, 400)
}

// IsRateLimited returns true if the error is a 429. The contact is sending
// messages faster than the tenant allows; retry after a pause.
func IsRateLimited(err error) bool {
	return hasStatus(err, 429)
}

// IsConflict returns true if the error is a 409, e.g. a handoff choice that
// was already recorded.
func IsConflict(err error) bool {
	return hasStatus(err, 409)
}

func hasStatus(err error, status int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == status
	}
	return false
}
