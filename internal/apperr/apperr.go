// Package apperr defines the coded error returned across the HTTP boundary.
// Every code maps to exactly one HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeListNotFound    Code = "LIST_NOT_FOUND"
	CodeItemNotFound    Code = "ITEM_NOT_FOUND"
	CodeUserNotFound    Code = "USER_NOT_FOUND"
	CodeFamilyNotFound  Code = "FAMILY_NOT_FOUND"
	CodeListItemMissing Code = "LIST_ITEM_NOT_FOUND"
	CodeDuplicateItem   Code = "DUPLICATE_ITEM"
	CodeInvalidQuantity Code = "INVALID_QUANTITY"
	CodeInvalidStatus   Code = "INVALID_STATUS"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// DefaultEntity tags errors that are not about a specific entity.
const DefaultEntity = "SHOPPING"

var statusByCode = map[Code]int{
	CodeValidation:      http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeListNotFound:    http.StatusNotFound,
	CodeItemNotFound:    http.StatusNotFound,
	CodeUserNotFound:    http.StatusNotFound,
	CodeFamilyNotFound:  http.StatusNotFound,
	CodeListItemMissing: http.StatusNotFound,
	CodeDuplicateItem:   http.StatusBadRequest,
	CodeInvalidQuantity: http.StatusBadRequest,
	CodeInvalidStatus:   http.StatusBadRequest,
	CodeRateLimited:     http.StatusTooManyRequests,
	CodeInternal:        http.StatusInternalServerError,
}

// Status returns the HTTP status for code. Unknown codes are treated as internal.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type Error struct {
	Code    Code
	Message string
	Entity  string
	Details any
	// Err is the underlying cause. It is logged, never serialized.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status for the error's code.
func (e *Error) Status() int { return e.Code.Status() }

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithEntity returns a copy of e tagged with entity.
func (e *Error) WithEntity(entity string) *Error {
	cp := *e
	cp.Entity = entity
	return &cp
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Entity: DefaultEntity}
}

func Validation(message string) *Error { return New(CodeValidation, message) }

func InvalidQuantity() *Error {
	return New(CodeInvalidQuantity, "Quantity must be non-negative")
}

func Unauthorized() *Error { return New(CodeUnauthorized, "Unauthorized") }

func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return New(CodeForbidden, message)
}

func RateLimited() *Error { return New(CodeRateLimited, "Too many requests") }

func ItemNotFound() *Error {
	return &Error{Code: CodeItemNotFound, Message: "Item not found", Entity: "ITEM"}
}

func ListNotFound() *Error {
	return &Error{Code: CodeListNotFound, Message: "Shopping list not found", Entity: "LIST"}
}

// Internal wraps cause behind a generic message.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Entity: DefaultEntity, Err: cause}
}

// From returns err as an *Error, wrapping anything else as INTERNAL_ERROR
// with fallback as the public message.
func From(err error, fallback string) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(fallback, err)
}
