package gateway

import "errors"

// Gateway error types
var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidJSON      = errors.New("message cannot be encoded as JSON")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrNilConnection    = errors.New("connection cannot be nil")
)
