package capture

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by triggers that are not legal in the
// current state. It is a programming-level guard: callers log it and move on.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrClosed is returned when the controller has been torn down.
var ErrClosed = errors.New("capture controller is closed")

// ErrorKind classifies capture failures for display purposes.
type ErrorKind int

const (
	ErrorCameraAccess ErrorKind = iota
	ErrorCameraRead
	ErrorEncoding
	ErrorNetwork
	ErrorService
	ErrorTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorCameraAccess:
		return "camera_access_denied"
	case ErrorCameraRead:
		return "camera_read_failure"
	case ErrorEncoding:
		return "encoding_failure"
	case ErrorNetwork:
		return "network_error"
	case ErrorService:
		return "service_error"
	case ErrorTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is the single failure descriptor surfaced on the session. Message is
// user-presentable; Err keeps the cause for logging.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServiceError carries a structured failure response from the processing
// service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Message)
}
