package orchestrator

import "errors"

// Custom error types for better error discrimination
var (
	// ErrSessionConnect is returned when the realtime session handshake fails
	ErrSessionConnect = errors.New("realtime session connect failed")

	// ErrNotConnected is returned when an operation needs a connected session
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidMode is returned for an unknown turn mode or an operation not allowed in the current one
	ErrInvalidMode = errors.New("invalid turn mode")

	// ErrNilProvider is returned when a required collaborator is nil
	ErrNilProvider = errors.New("required provider is nil")

	// ErrClosed is returned after the orchestrator has been closed
	ErrClosed = errors.New("orchestrator closed")
)
