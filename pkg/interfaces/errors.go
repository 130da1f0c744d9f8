package interfaces

import "errors"

// Interface-level error types shared across implementations
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrChannelReleased = errors.New("channel has been released")
)
