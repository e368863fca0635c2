package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category represents the type of error.
type Category string

const (
	CategoryRegistry Category = "registry"
	CategorySession  Category = "session"
	CategoryRequest  Category = "request"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// KeeperError is a structured error with a code, a hint and an HTTP status.
type KeeperError struct {
	// Code is a unique error identifier (e.g., "P001").
	Code string

	// Category is the error type (registry, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer, instance-specific explanation.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Status is the HTTP status used when the error crosses the API.
	Status int

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *KeeperError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *KeeperError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *KeeperError) WithSuggestion(s string) *KeeperError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *KeeperError) WithDetail(d string) *KeeperError {
	e.Detail = d
	return e
}

// Wrap wraps another error. The wrapped message becomes the detail when
// no detail was set.
func (e *KeeperError) Wrap(err error) *KeeperError {
	e.Wrapped = err
	if e.Detail == "" && err != nil {
		e.Detail = err.Error()
	}
	return e
}

// HTTPStatus returns the status to answer with, defaulting to 500.
func (e *KeeperError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// New creates a KeeperError from a registered error code.
func New(code string) *KeeperError {
	template, ok := registry[code]
	if !ok {
		return &KeeperError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &KeeperError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Status:   template.Status,
	}
}

// Newf creates a new KeeperError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *KeeperError {
	return &KeeperError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a KeeperError.
// An error that already is (or wraps) a KeeperError is returned as-is.
func FromError(err error, code string) *KeeperError {
	if err == nil {
		return nil
	}
	var ke *KeeperError
	if stderrors.As(err, &ke) {
		return ke
	}
	return New(code).Wrap(err)
}
