package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrUnexpectedMessage    = errors.New("message kind is not accepted by the server")
	ErrUnauthorized         = errors.New("unauthorized")
)
