// Package errs defines the stable failure categories surfaced by the registry.
//
// Every error returned by the service layer can be classified into exactly one
// Category. Store-level sentinel errors are classified without wrapping so the
// database package stays free of any knowledge about the API surface.
package errs

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
)

// Category is a stable, machine-readable failure class.
type Category string

const (
	CategoryValidation         Category = "validation_failure"
	CategoryConflict           Category = "conflict"
	CategoryNotFound           Category = "not_found"
	CategoryAuthorization      Category = "authorization_failure"
	CategoryUnauthenticated    Category = "unauthenticated"
	CategoryBackendUnavailable Category = "backend_unavailable"
	CategoryInternal           Category = "internal"
)

// Error is a categorized failure. Stage is set for failures raised by the
// write pipeline and names the stage that did not complete.
type Error struct {
	Category Category
	Stage    string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Category)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("%s (stage %s)", msg, e.Stage)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or out-of-range input.
func Validation(format string, args ...any) error {
	return &Error{Category: CategoryValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness or ownership state violation.
func Conflict(format string, args ...any) error {
	return &Error{Category: CategoryConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an identifier that does not resolve.
func NotFound(format string, args ...any) error {
	return &Error{Category: CategoryNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports an ownership mismatch.
func Forbidden(format string, args ...any) error {
	return &Error{Category: CategoryAuthorization, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports a mutation attempted without an identity.
func Unauthenticated(format string, args ...any) error {
	return &Error{Category: CategoryUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

// Unavailable reports that a backend could not be reached while executing stage.
func Unavailable(stage string, err error, format string, args ...any) error {
	return &Error{Category: CategoryBackendUnavailable, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

// CategoryOf classifies err. Unknown errors are internal.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	switch {
	case errors.Is(err, database.ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, database.ErrAlreadyExists),
		errors.Is(err, database.ErrInvalidVersion),
		errors.Is(err, database.ErrConflict),
		errors.Is(err, database.ErrRevisionMismatch):
		return CategoryConflict
	case errors.Is(err, database.ErrForbidden):
		return CategoryAuthorization
	case errors.Is(err, database.ErrInvalidInput):
		return CategoryValidation
	case errors.Is(err, database.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryBackendUnavailable
	}
	return CategoryInternal
}

// StageOf returns the pipeline stage recorded on err, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// Is reports whether err belongs to category c.
func Is(err error, c Category) bool {
	return CategoryOf(err) == c
}
