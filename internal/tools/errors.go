package tools

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when a calendar tool runs without a
// provider credential.
var ErrUnauthenticated = errors.New("calendar access not authorized")

// ErrInvalidArguments matches every *ArgumentError.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ArgumentError reports tool arguments that failed validation.
type ArgumentError struct {
	Tool   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}

// RemoteError carries the calendar provider's error text.
type RemoteError struct {
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("calendar provider error: %v", e.Err)
	}
	return "calendar provider error: " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
