package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the error type surfaced at operation boundaries. Code is a
// business code from codes.go, HTTPStatus the status the HTTP layer should
// use. Err, when set, is the underlying cause and is never shown to clients.
type AppError struct {
	Code       int
	HTTPStatus int
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// AsAppError unwraps err into an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, HTTPStatus: http.StatusBadRequest, Message: msg}
}

func ErrNotFound(code int, msg string) *AppError {
	return &AppError{Code: code, HTTPStatus: http.StatusNotFound, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, HTTPStatus: http.StatusForbidden, Message: msg}
}

func ErrNotAllowed(msg string) *AppError {
	return &AppError{Code: CodeOperationNotAllowed, HTTPStatus: http.StatusConflict, Message: msg}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConcurrentUpdate, HTTPStatus: http.StatusConflict, Message: msg}
}

func ErrTooLong(msg string) *AppError {
	return &AppError{Code: CodeMessageTooLong, HTTPStatus: http.StatusBadRequest, Message: msg}
}

// ErrExternal reports an upstream service failure. code distinguishes the
// kind (gateway error, timeout, quota).
func ErrExternal(code int, msg string, cause error) *AppError {
	return &AppError{Code: code, HTTPStatus: http.StatusBadGateway, Message: msg, Err: cause}
}

func ErrConfiguration(msg string) *AppError {
	return &AppError{Code: CodeConfiguration, HTTPStatus: http.StatusInternalServerError, Message: msg}
}

func ErrNotImplemented(msg string) *AppError {
	return &AppError{Code: CodeNotImplemented, HTTPStatus: http.StatusNotImplemented, Message: msg}
}

func ErrInternal(cause error) *AppError {
	return &AppError{Code: CodeInternal, HTTPStatus: http.StatusInternalServerError, Message: "internal error", Err: cause}
}
