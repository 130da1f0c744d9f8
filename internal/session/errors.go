package session

import "errors"

// Session lifecycle error types
var (
	ErrInvalidRoomID = errors.New("session manager requires a valid room ID")
	ErrInvalidUserID = errors.New("session manager requires a valid user ID")
	ErrInvalidRole   = errors.New("invalid role: must be 'student' or 'teacher'")
)
