package domain

import "errors"

// Sentinel errors for the failure taxonomy. Persistence failures are plain
// wrapped errors from the store; everything that should map to a client
// status is classified with errors.Is against these.
var (
	// ErrUnauthorized rejects a connection attempt whose credential token
	// did not resolve to a valid identity. No state is mutated on this path.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation rejects malformed send/markRead arguments before any
	// persistence occurs.
	ErrValidation = errors.New("validation failed")
)
