package chat

import (
	"errors"
	"fmt"
)

// PlaceholderPreviousMessage is rendered when a referenced message or
// conversation can no longer be resolved.
const PlaceholderPreviousMessage = "Previous message"

// Sentinel errors shared across components.
var (
	ErrNotConnected = errors.New("not connected")
	ErrNotFound     = errors.New("not found")
)

// TransportError reports that the realtime connection was lost or never
// established. Operations failing with it are not retried or queued.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError rejects local input before anything is transmitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RequestFailure means the server rejected an operation. Status is zero for
// rejections delivered through an event acknowledgment.
type RequestFailure struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestFailure) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "request rejected"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *RequestFailure) Unwrap() error {
	return e.Err
}

// NotFoundError is a race where a conversation or reply target disappeared
// between listing and use.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InlineMessage converts an operation error into the short text shown next
// to the control that triggered it. It never returns an empty string for a
// non-nil error.
func InlineMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		te *TransportError
		ve *ValidationError
		rf *RequestFailure
	)
	switch {
	case errors.As(err, &te):
		return "Not connected. Check your connection and try again."
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &rf):
		if rf.Message != "" {
			return rf.Message
		}
		return "The server rejected the request."
	case errors.Is(err, ErrNotFound):
		return PlaceholderPreviousMessage + " is no longer available."
	default:
		return "Something went wrong. Try again."
	}
}
