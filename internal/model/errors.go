package model

import "errors"

// ErrInvalidArgument marks a precondition violation by the caller. Retrying
// without changing the input yields the same error.
var ErrInvalidArgument = errors.New("invalid argument")

// IsInvalidArgument returns true if err wraps ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// ErrNotModified is returned by a remote source when the resource still
// matches the entity tag the caller sent.
var ErrNotModified = errors.New("not modified")
