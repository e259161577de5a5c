// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Kinds mapped to HTTP status by the request glue (§7 taxonomy).
var (
	// ErrBadRequest indicates malformed framing, bad JSON, bad semver, or a bad name.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized indicates a missing or empty token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an unknown token, wrong user, or failed ownership check.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionExists indicates a duplicate publish of an already-existing version.
	ErrVersionExists = errors.New("version already exists")

	// ErrPayloadTooLarge indicates the request body exceeded the configured size limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrConflict indicates a storage key already holds different bytes.
	ErrConflict = errors.New("conflict")

	// ErrStorageIO indicates an object-store failure.
	ErrStorageIO = errors.New("storage io error")

	// ErrIndexIO indicates a relational/filesystem index failure.
	ErrIndexIO = errors.New("index io error")

	// ErrAuthIO indicates an auth backend failure unrelated to credentials.
	ErrAuthIO = errors.New("auth io error")

	// ErrShuttingDown is returned once the drain barrier has been raised.
	ErrShuttingDown = errors.New("shutting down")

	// ErrRateLimited indicates a temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g. username taken).
	ErrAlreadyExists = errors.New("already exists")
)
