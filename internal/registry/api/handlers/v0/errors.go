package v0

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
)

// ErrorConfig controls how failures are rendered for clients.
type ErrorConfig struct {
	// ExposeDetail adds the wrapped cause to error bodies. It is off in production.
	ExposeDetail bool
}

// APIError is the error body of every failed request.
type APIError struct {
	Status   int                 `json:"status" example:"404"`
	Category string              `json:"category" enum:"validation_failure,conflict,not_found,authorization_failure,unauthenticated,backend_unavailable,internal" doc:"Stable machine-readable failure class"`
	Message  string              `json:"message" example:"server filesystem not found"`
	Stage    string              `json:"stage,omitempty" doc:"Write pipeline stage that did not complete"`
	Detail   string              `json:"detail,omitempty" doc:"Wrapped cause, outside production only"`
	Errors   []*huma.ErrorDetail `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) GetStatus() int {
	return e.Status
}

var categoryStatus = map[errs.Category]int{
	errs.CategoryValidation:         http.StatusBadRequest,
	errs.CategoryConflict:           http.StatusConflict,
	errs.CategoryNotFound:           http.StatusNotFound,
	errs.CategoryAuthorization:      http.StatusForbidden,
	errs.CategoryUnauthenticated:    http.StatusUnauthorized,
	errs.CategoryBackendUnavailable: http.StatusServiceUnavailable,
	errs.CategoryInternal:           http.StatusInternalServerError,
}

func statusCategory(status int) errs.Category {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.CategoryValidation
	case http.StatusUnauthorized:
		return errs.CategoryUnauthenticated
	case http.StatusForbidden:
		return errs.CategoryAuthorization
	case http.StatusNotFound:
		return errs.CategoryNotFound
	case http.StatusConflict:
		return errs.CategoryConflict
	case http.StatusServiceUnavailable:
		return errs.CategoryBackendUnavailable
	}
	return errs.CategoryInternal
}

// apiError translates a service error into its HTTP form.
func (ec ErrorConfig) apiError(err error) error {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}

	category := errs.CategoryOf(err)
	out := &APIError{
		Status:   categoryStatus[category],
		Category: string(category),
		Stage:    errs.StageOf(err),
	}

	var e *errs.Error
	switch {
	case errors.As(err, &e) && e.Message != "":
		out.Message = e.Message
		if e.Err != nil && ec.ExposeDetail {
			out.Detail = e.Err.Error()
		}
	case category == errs.CategoryInternal:
		out.Message = "internal error"
		if ec.ExposeDetail {
			out.Detail = err.Error()
		}
	default:
		out.Message = err.Error()
	}
	return out
}

// NewError builds huma's own errors (parameter validation, body parsing) in
// the APIError shape. Schema validation failures are reported as 400.
func (ec ErrorConfig) NewError(status int, msg string, details ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	out := &APIError{
		Status:   status,
		Category: string(statusCategory(status)),
		Message:  msg,
	}
	var reasons []string
	for _, d := range details {
		if d == nil {
			continue
		}
		var ed *huma.ErrorDetail
		if errors.As(d, &ed) {
			out.Errors = append(out.Errors, ed)
			continue
		}
		reasons = append(reasons, d.Error())
	}
	if len(reasons) > 0 && ec.ExposeDetail {
		out.Detail = strings.Join(reasons, "; ")
	}
	return out
}
