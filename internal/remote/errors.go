package remote

import (
	"errors"
	"fmt"
)

// Common errors returned by Store implementations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrListNotFound) {
//	    // create the list
//	}
var (
	// ErrListNotFound is returned when the named list does not exist.
	ErrListNotFound = errors.New("list not found")

	// ErrFieldNotFound is returned when a field id or name is unknown.
	ErrFieldNotFound = errors.New("field not found")

	// ErrViewNotFound is returned when a view id is unknown.
	ErrViewNotFound = errors.New("view not found")

	// ErrConflict is returned when the store rejects a write because the
	// entity changed underneath it or a prior write is not yet visible.
	ErrConflict = errors.New("conflicting change")

	// ErrThrottled is returned when the store asks the client to slow down.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable is returned for server-side failures.
	ErrUnavailable = errors.New("service unavailable")

	// ErrUnauthorized is returned when credentials are missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks permission.
	ErrForbidden = errors.New("forbidden")
)

// StatusError carries the HTTP status and server message of a failed call.
// It unwraps to one of the sentinel errors above when one applies.
type StatusError struct {
	Op      string
	Status  int
	Message string
	Kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

// IsNotFound returns true if the error means the list, field or view does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrListNotFound) ||
		errors.Is(err, ErrFieldNotFound) ||
		errors.Is(err, ErrViewNotFound)
}

// IsTransient returns true if the error is likely to succeed on retry.
// The list service applies schema writes asynchronously, so conflicts right
// after a write are treated as transient along with throttling and outages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrThrottled) {
		return true
	}

	if errors.Is(err, ErrUnavailable) {
		return true
	}

	if errors.Is(err, ErrConflict) {
		return true
	}

	return false
}

// IsFatal returns true if no further call can succeed without user action.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrUnauthorized) {
		return true
	}

	if errors.Is(err, ErrForbidden) {
		return true
	}

	return false
}
