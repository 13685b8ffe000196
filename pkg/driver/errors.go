package driver

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents an AI engine runtime status code
type Status int

// Status codes shared by every layer of the runtime
const (
	StatusSuccess           Status = 0
	StatusInvalidState      Status = 1
	StatusNotFound          Status = 2
	StatusInvalidArgument   Status = 3
	StatusResourceExhausted Status = 4
	StatusHardwareFault     Status = 5
	StatusProtocolViolation Status = 6
	StatusTimeout           Status = 7
	StatusOutOfMemory       Status = 8
	StatusPermissionDenied  Status = 9
)

var statusMessages = map[Status]string{
	StatusSuccess:           "success",
	StatusInvalidState:      "invalid state",
	StatusNotFound:          "not found",
	StatusInvalidArgument:   "invalid argument",
	StatusResourceExhausted: "resource exhausted",
	StatusHardwareFault:     "hardware fault",
	StatusProtocolViolation: "protocol violation",
	StatusTimeout:           "timeout",
	StatusOutOfMemory:       "out of memory",
	StatusPermissionDenied:  "permission denied",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// AieError represents an error from the AI engine driver or runtime
type AieError struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *AieError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *AieError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *AieError) Is(target error) bool {
	var aieErr *AieError
	if errors.As(target, &aieErr) {
		return e.Status == aieErr.Status
	}
	return false
}

// NewError creates a new AieError with the given status
func NewError(status Status, context string) *AieError {
	return &AieError{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new AieError with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *AieError {
	return &AieError{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// IsStatus reports whether err carries the given status anywhere in its chain
func IsStatus(err error, status Status) bool {
	var aieErr *AieError
	if errors.As(err, &aieErr) {
		return aieErr.Status == status
	}
	return false
}

// ErrnoToStatus converts a Linux errno to a runtime status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.ENOENT, unix.ENODEV:
		return StatusNotFound
	case unix.EINVAL:
		return StatusInvalidArgument
	case unix.EAGAIN, unix.ENOSPC:
		return StatusResourceExhausted
	case unix.ENOMEM, unix.ENOBUFS:
		return StatusOutOfMemory
	case unix.ETIMEDOUT:
		return StatusTimeout
	case unix.EACCES, unix.EPERM:
		return StatusPermissionDenied
	default:
		return StatusHardwareFault
	}
}

// StatusFromErrno creates an AieError from an errno
func StatusFromErrno(errno unix.Errno, context string) *AieError {
	return &AieError{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}
