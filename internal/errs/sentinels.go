// Package errs contains sentinel and typed errors used across the client layers for stable error mapping.
package errs

import "errors"

// Common sentinels across gateway/store layers.
var (
	// ErrConnectivity indicates the backend could not be reached at all.
	ErrConnectivity = errors.New("cannot reach the server, check that the backend is running")

	// ErrUnauthorized indicates the backend rejected the credential (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks the role for the resource (HTTP 403).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation reported by the backend (HTTP 409).
	ErrAlreadyExists = errors.New("already exists")

	// ErrRateLimited indicates a temporary local login lock after repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoCredential indicates there is no usable persisted credential.
	ErrNoCredential = errors.New("no valid credential (login required)")

	// ErrValidation indicates input rejected before any network call.
	ErrValidation = errors.New("validation")
)
