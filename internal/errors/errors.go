package errors

import "errors"

// Shared sentinels used across the engine's packages.
var (
	// ErrNotFound signals an absent entry in a store.
	ErrNotFound = errors.New("not found")

	// ErrCancelled signals that the user abandoned an operation.
	ErrCancelled = errors.New("cancelled by user")

	// ErrInternal signals a misuse of the engine that the caller cannot
	// recover from.
	ErrInternal = errors.New("internal error")
)
