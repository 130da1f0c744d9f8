package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID   = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRoomID   = errors.New("room ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole     = errors.New("invalid role: must be 'student' or 'teacher'")
	ErrInvalidEvent    = errors.New("invalid broadcast event")
	ErrPayloadTooLarge = errors.New("broadcast payload exceeds 64KB limit")
	ErrEmptyPayload    = errors.New("broadcast payload cannot be empty")
)
