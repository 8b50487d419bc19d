package core

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrBadRequest        ErrorCode = "WS_BAD_REQUEST"
	ErrNotFound          ErrorCode = "WS_NOT_FOUND"
	ErrHostNotFound      ErrorCode = "WS_HOST_NOT_FOUND"
	ErrConflict          ErrorCode = "WS_CONFLICT"
	ErrBackend           ErrorCode = "WS_BACKEND_ERROR"
	ErrUnknownBackend    ErrorCode = "WS_UNKNOWN_BACKEND"
	ErrResourceExhausted ErrorCode = "WS_RESOURCE_EXHAUSTED"
	ErrRemote            ErrorCode = "WS_REMOTE_ERROR"
	ErrProtocol          ErrorCode = "WS_PROTOCOL_ERROR"
	ErrInternal          ErrorCode = "WS_INTERNAL"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest:
		return 400
	case ErrNotFound, ErrHostNotFound:
		return 404
	case ErrConflict:
		return 409
	case ErrUnknownBackend:
		return 422
	case ErrResourceExhausted:
		return 503
	case ErrBackend, ErrRemote:
		return 502
	case ErrProtocol:
		return 502
	default:
		return 500
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// WrapError attaches a code to an underlying error, keeping it reachable
// through errors.Is/As.
func WrapError(code ErrorCode, msg string, cause error) *AppError {
	return &AppError{Code: code, Message: msg, cause: cause}
}

// CodeOf extracts the error code from err, or ErrInternal when err does
// not carry one.
func CodeOf(err error) ErrorCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrInternal
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}
