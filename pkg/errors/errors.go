package errors

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotConnected reports that no live transport connection exists. Requests
// never queue behind it.
func NotConnected() *AppError {
	return &AppError{
		Code:    "NOT_CONNECTED",
		Message: "no connection to the server",
	}
}

func NotRegistered() *AppError {
	return &AppError{
		Code:    "NOT_REGISTERED",
		Message: "customer is not registered",
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Err:     err,
	}
}

// CustomerNotFound is fatal to the session: the caller must clear persisted
// identity and force re-registration.
func CustomerNotFound(message string) *AppError {
	return &AppError{
		Code:    "CUSTOMER_NOT_FOUND",
		Message: message,
	}
}

// NoResponse marks a request whose acknowledgement never arrived within the
// configured timeout.
func NoResponse(event string) *AppError {
	return &AppError{
		Code:    "NO_RESPONSE",
		Message: fmt.Sprintf("no reply to %s", event),
	}
}

func Operation(message string, err error) *AppError {
	return &AppError{
		Code:    "OPERATION_FAILED",
		Message: message,
		Err:     err,
	}
}

func Storage(message string, err error) *AppError {
	return &AppError{
		Code:    "STORAGE_ERROR",
		Message: message,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
