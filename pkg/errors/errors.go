// Package errors holds the error values shared by the messaging layer.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected indicates that the client is not connected to NATS
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrInvalidSubject indicates that the provided subject is invalid
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrInvalidJob indicates that a job message could not be decoded or is incomplete
	ErrInvalidJob = errors.New("invalid job")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrPublishFailed indicates that a message could not be published
	ErrPublishFailed = errors.New("publish failed")

	// ErrPullFailed indicates that messages could not be fetched from a consumer
	ErrPullFailed = errors.New("pull failed")
)

// Error codes
const (
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeJetStreamMissing = "JETSTREAM_NOT_ENABLED"
	CodeStreamEnsure     = "STREAM_ENSURE_FAILED"
	CodeConsumerEnsure   = "CONSUMER_ENSURE_FAILED"
	CodeMarshalFailed    = "MARSHAL_FAILED"
	CodePublishFailed    = "PUBLISH_FAILED"
	CodePullFailed       = "PULL_FAILED"
	CodeInvalidMessage   = "INVALID_MESSAGE"
)

// Error represents a structured messaging error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new messaging error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first Error in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
