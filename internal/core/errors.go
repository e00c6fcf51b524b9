package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeAlreadyBound      = "already_bound"
	ErrCodeNotAuthenticated  = "not_authenticated"
	ErrCodeEmptyContent      = "empty_content"
	ErrCodeContentTooLong    = "content_too_long"
	ErrCodeNotInRoom         = "not_in_room"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeSessionSuperseded = "session_superseded"
)

var (
	ErrAlreadyBound      = errors.New("connection already authenticated")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrUnknownConnection = errors.New("unknown connection")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// errorFor maps a sentinel error to the code sent back to the client.
func errorFor(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrAlreadyBound):
		return coreError(ErrCodeAlreadyBound, err.Error())
	case errors.Is(err, ErrNotAuthenticated):
		return coreError(ErrCodeNotAuthenticated, err.Error())
	case errors.Is(err, ErrEmptyContent):
		return coreError(ErrCodeEmptyContent, err.Error())
	default:
		return coreError(ErrCodeBadRequest, err.Error())
	}
}
