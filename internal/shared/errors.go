package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent modification was detected.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the principal lacks a required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or unusable principal.
	ErrUnauthorized = errors.New("unauthorized")
)
