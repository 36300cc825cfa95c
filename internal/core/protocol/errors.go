package protocol

import (
	"errors"
	"fmt"
)

// Core protocol errors
var (
	// Message errors

	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message kind")
	ErrMessageTooLarge  = errors.New("message too large")

	// Connection errors

	ErrConnectionClosed = errors.New("connection is closed")
	ErrConnectionLost   = errors.New("connection lost")
	ErrNotConnected     = errors.New("not connected")
	ErrUnknownPeer      = errors.New("unknown peer")

	// Session errors

	ErrLagging     = errors.New("no messages received within lag timeout")
	ErrSessionFull = errors.New("session is full")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	// Success

	ErrorCodeSuccess ErrorCode = 0

	// Protocol error codes (1000-1999). Fatal for the affected connection,
	// recovered through a full resync.

	ErrorCodeMalformedUpdate ErrorCode = 1001
	ErrorCodeUnknownTypeTag  ErrorCode = 1002
	ErrorCodeBitsetMismatch  ErrorCode = 1003
	ErrorCodeUnknownMessage  ErrorCode = 1004
	ErrorCodeMalformedTurn   ErrorCode = 1005
	ErrorCodeMessageTooLarge ErrorCode = 1006

	// Configuration error codes (2000-2999). Fatal at startup.

	ErrorCodeDuplicateTag        ErrorCode = 2001
	ErrorCodeMissingLogic        ErrorCode = 2002
	ErrorCodeUnregisteredCommand ErrorCode = 2003
	ErrorCodeInvalidConfig       ErrorCode = 2004

	// Transient error codes (3000-3999). Recovered automatically.

	ErrorCodeConnectionLost   ErrorCode = 3001
	ErrorCodeLagging          ErrorCode = 3002
	ErrorCodeConnectionClosed ErrorCode = 3003
	ErrorCodeSessionFull      ErrorCode = 3004

	// Generic error codes (9000-9999)

	ErrorCodeUnknownError ErrorCode = 9999
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeSuccess:
		return "success"
	case ErrorCodeMalformedUpdate:
		return "malformed update"
	case ErrorCodeUnknownTypeTag:
		return "unknown type tag"
	case ErrorCodeBitsetMismatch:
		return "bitset size mismatch"
	case ErrorCodeUnknownMessage:
		return "unknown message"
	case ErrorCodeMalformedTurn:
		return "malformed turn"
	case ErrorCodeMessageTooLarge:
		return "message too large"
	case ErrorCodeDuplicateTag:
		return "duplicate tag"
	case ErrorCodeMissingLogic:
		return "missing command logic"
	case ErrorCodeUnregisteredCommand:
		return "unregistered command"
	case ErrorCodeInvalidConfig:
		return "invalid config"
	case ErrorCodeConnectionLost:
		return "connection lost"
	case ErrorCodeLagging:
		return "lagging"
	case ErrorCodeConnectionClosed:
		return "connection closed"
	case ErrorCodeSessionFull:
		return "session full"
	default:
		return fmt.Sprintf("error code %d", int(c))
	}
}

// Error represents a protocol-specific error with additional context
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsTemporary reports whether the condition clears without intervention.
func (e *Error) IsTemporary() bool {
	switch e.Code {
	case ErrorCodeConnectionLost,
		ErrorCodeLagging,
		ErrorCodeConnectionClosed,
		ErrorCodeSessionFull:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the connection that produced the error can no
// longer trust incremental state and must be resynced.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeMalformedUpdate,
		ErrorCodeUnknownTypeTag,
		ErrorCodeBitsetMismatch,
		ErrorCodeUnknownMessage,
		ErrorCodeMalformedTurn,
		ErrorCodeMessageTooLarge:
		return true
	default:
		return false
	}
}

// IsConfiguration reports whether the error indicates a setup mistake that
// must stop the process at startup.
func (e *Error) IsConfiguration() bool {
	return e.Code >= 2000 && e.Code < 3000
}

// Error mapping from standard errors to error codes
var errorCodeMap = map[error]ErrorCode{
	ErrMalformedMessage: ErrorCodeMalformedUpdate,
	ErrUnknownMessage:   ErrorCodeUnknownMessage,
	ErrMessageTooLarge:  ErrorCodeMessageTooLarge,
	ErrConnectionClosed: ErrorCodeConnectionClosed,
	ErrConnectionLost:   ErrorCodeConnectionLost,
	ErrNotConnected:     ErrorCodeConnectionLost,
	ErrLagging:          ErrorCodeLagging,
	ErrSessionFull:      ErrorCodeSessionFull,
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}

	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into a protocol Error
func WrapError(err error, message string) *Error {
	return NewProtocolError(GetErrorCode(err), message, err)
}

// IsFatal reports whether err carries a fatal protocol code.
func IsFatal(err error) bool {
	var protocolErr *Error
	return errors.As(err, &protocolErr) && protocolErr.IsFatal()
}

// IsConfiguration reports whether err carries a configuration code.
func IsConfiguration(err error) bool {
	var protocolErr *Error
	return errors.As(err, &protocolErr) && protocolErr.IsConfiguration()
}
