package session

import "errors"

// Errors returned by Controller operations.
var (
	ErrPermissionDenied = errors.New("session: recognition permission denied")
	ErrSessionActive    = errors.New("session: already active")
	ErrNotActive        = errors.New("session: not active")
	ErrPersistence      = errors.New("session: saving tasks failed")
)
