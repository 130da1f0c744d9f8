package transport

import "errors"

// Transport-level error types
var (
	ErrEmptyTopic = errors.New("topic cannot be empty")
)
