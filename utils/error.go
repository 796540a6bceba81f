package utils

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ErrorKind discriminates service failures. Every operation either succeeds
// or returns exactly one kind; the HTTP layer maps kinds to statuses and the
// presentation layer maps them to user messages.
type ErrorKind string

const (
	ErrorKindNotFound        ErrorKind = "NOT_FOUND"
	ErrorKindForbidden       ErrorKind = "FORBIDDEN"
	ErrorKindConflict        ErrorKind = "CONFLICT"
	ErrorKindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	ErrorKindInvalidAmount   ErrorKind = "INVALID_AMOUNT"
	ErrorKindTypeMismatch    ErrorKind = "TYPE_MISMATCH"
	ErrorKindInternal        ErrorKind = "INTERNAL"
)

type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func NewNotFoundError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewForbiddenError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindForbidden, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidArgumentError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidAmountError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindInvalidAmount, Message: fmt.Sprintf(format, args...)}
}

func NewTypeMismatchError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindTypeMismatch, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error. Unrecognized errors are INTERNAL so raw
// detail never reaches a client by accident.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorKindNotFound
	}
	return ErrorKindInternal
}

func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindForbidden:
		return http.StatusForbidden
	case ErrorKindConflict:
		return http.StatusConflict
	case ErrorKindInvalidArgument, ErrorKindInvalidAmount, ErrorKindTypeMismatch:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the text safe to surface to an end user.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if KindOf(err) == ErrorKindNotFound {
		return "record not found"
	}
	return "something went wrong"
}
