package auth

import "errors"

// Auth error types
var (
	ErrInvalidToken     = errors.New("token is not valid")
	ErrInvalidSubject   = errors.New("token subject is not a valid user ID")
	ErrInvalidTokenRole = errors.New("token role must be 'student' or 'teacher'")
)
