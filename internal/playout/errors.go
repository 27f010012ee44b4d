package playout

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can decide whether to
// retry, surface, or tolerate them.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"       // 401, 403
	KindValidation ErrorKind = "validation" // 400, 422
	KindConflict   ErrorKind = "conflict"   // 409
	KindNotFound   ErrorKind = "not_found"  // 404
	KindTransient  ErrorKind = "transient"  // 429, 5xx, network
)

// APIError is a typed failure from the playout engine.
type APIError struct {
	Kind   ErrorKind
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("playout engine: %s (status %d): %s", e.Kind, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the engine. Deletes treat it
// as already-removed.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// IsConflict reports whether err is a 409 from the engine.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindConflict
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindNotFound
	case status == 409:
		return KindConflict
	case status == 429 || status >= 500:
		return KindTransient
	default:
		return KindValidation
	}
}
