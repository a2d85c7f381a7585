// Package errmodel is the categorized error returned across the feed
// service boundary and rendered by the HTTP layer.
package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Error categories.
const (
	CategoryValidation = "validation"
	CategoryNetwork    = "network"
	CategorySystem     = "system"
)

// Error is a categorized error with a stable code. The wrapped cause is
// kept for errors.Is/As and logging but never serialized.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Validation reports a bad request parameter.
func Validation(code, message string, ctx map[string]any) *Error {
	return &Error{Category: CategoryValidation, Code: code, Message: truncate(message, 512), Context: ctx}
}

// Network reports a failed call to a collaborator (upstream API, resolver).
func Network(code, message string, cause error) *Error {
	return &Error{Category: CategoryNetwork, Code: code, Message: truncate(message, 512), cause: cause}
}

// System reports a local failure such as a store error.
func System(code, message string, cause error) *Error {
	return &Error{Category: CategorySystem, Code: code, Message: truncate(message, 512), cause: cause}
}

// From converts err into an *Error. Uncategorized errors become system
// errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Category: CategorySystem, Code: "internal", Message: "internal error", cause: err}
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category string) bool {
	e := From(err)
	return e != nil && e.Category == category
}

// HTTPStatus maps the error category to a response status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		if e.Code == "not_found" {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes err as {"error": {...}, "trace_id": "..."}.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	e := From(err)
	if e == nil {
		e = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}

	traceID := ""
	if r != nil {
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(e))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    e,
		"trace_id": traceID,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
