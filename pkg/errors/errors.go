// Package errors defines the error kinds the HTTP layer knows how to render.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Kind is the public face of an error class: its code, status and the
// message shown when the underlying error text must stay private.
type Kind struct {
	Code    string
	Status  int
	Message string
}

var (
	kindNotFound    = Kind{"NOT_FOUND", http.StatusNotFound, "resource not found"}
	kindInvalid     = Kind{"INVALID_INPUT", http.StatusBadRequest, "invalid input"}
	kindUnavailable = Kind{"SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "a dependency is temporarily unavailable"}
	kindInternal    = Kind{"INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred"}
)

var sentinels = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, kindNotFound},
	{ErrInvalidInput, kindInvalid},
	{ErrServiceUnavail, kindUnavailable},
}

// AppError carries a client-facing code and message alongside the cause.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(k Kind, message string, err error) *AppError {
	return &AppError{Code: k.Code, Message: message, Status: k.Status, Err: err}
}

func NotFound(resource, id string) *AppError {
	return newAppError(kindNotFound, fmt.Sprintf("%s %s not found", resource, id), ErrNotFound)
}

func InvalidInput(message string) *AppError {
	return newAppError(kindInvalid, message, ErrInvalidInput)
}

// ServiceUnavailable reports a collaborator that cannot serve the request.
// The result matches ErrServiceUnavail and, when given, err.
func ServiceUnavailable(message string, err error) *AppError {
	cause := ErrServiceUnavail
	if err != nil {
		cause = fmt.Errorf("%w: %w", ErrServiceUnavail, err)
	}
	return newAppError(kindUnavailable, message, cause)
}

// Classify resolves err to the kind it should be rendered as. An AppError
// keeps its own code and status; bare sentinels map to their kind; anything
// else is internal. Wrapped invalid input keeps its full text as the message.
func Classify(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return Kind{Code: appErr.Code, Status: appErr.Status, Message: appErr.Message}
	}
	for _, s := range sentinels {
		if !errors.Is(err, s.err) {
			continue
		}
		k := s.kind
		if s.err == ErrInvalidInput {
			k.Message = err.Error()
		}
		return k
	}
	return kindInternal
}
