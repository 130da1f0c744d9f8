package realtime

import "errors"

// Engine error types
var (
	ErrInvalidRoomID = errors.New("engine requires a valid room ID")
	ErrInvalidUserID = errors.New("engine requires a valid user ID")
	ErrInvalidRole   = errors.New("engine requires a valid participant role")
)
