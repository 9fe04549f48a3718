package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrTypeMismatch is returned when a type descriptor has the wrong kind
	// for the requested operation.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrMalformedValue is returned when a value does not match its declared
	// type or cannot be decoded.
	ErrMalformedValue = errors.New("malformed value")
)
