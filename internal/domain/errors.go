package domain

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the backing document store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidArgument is returned for empty ids and out-of-range values.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized is returned when a caller acts on another subject without the admin role.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSubjectNotFound indicates the subject has no profile record.
	ErrSubjectNotFound = errors.New("subject not found")
)
