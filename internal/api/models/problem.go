package models

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 error response.
// This is used for all API error responses with Content-Type: application/problem+json.
type Problem struct {
	// Success is always false. Mobile clients branch on it before reading the body.
	Success bool `json:"success"`

	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Code is the machine-readable error code, e.g. OUT_OF_BOUNDS.
	Code string `json:"code"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeValidation      = "https://api.clearskies.app/problems/validation-error"
	ProblemTypeUnauthorized    = "https://api.clearskies.app/problems/unauthorized"
	ProblemTypeForbidden       = "https://api.clearskies.app/problems/forbidden"
	ProblemTypeNotFound        = "https://api.clearskies.app/problems/not-found"
	ProblemTypeTooManyRequests = "https://api.clearskies.app/problems/too-many-requests"
	ProblemTypeInternal        = "https://api.clearskies.app/problems/internal-error"
	ProblemTypeUnavailable     = "https://api.clearskies.app/problems/service-unavailable"
	ProblemTypeUnsupported     = "https://api.clearskies.app/problems/unsupported-media-type"
	ProblemTypeBodyTooLarge    = "https://api.clearskies.app/problems/body-too-large"
	ProblemTypeTLSRequired     = "https://api.clearskies.app/problems/tls-required"
)

// Error codes carried in Problem.Code.
const (
	CodeMissingLocation = "MISSING_LOCATION"
	CodeInvalidLocation = "INVALID_LOCATION"
	CodeOutOfBounds     = "OUT_OF_BOUNDS"
	CodeValidation      = "VALIDATION_ERROR"
	CodeMissingAuth     = "MISSING_AUTH"
	CodeInvalidAuth     = "INVALID_AUTH"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeUnsupportedType = "UNSUPPORTED_MEDIA_TYPE"
	CodeBodyTooLarge    = "BODY_TOO_LARGE"
	CodeTLSRequired     = "TLS_REQUIRED"
)

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithCode sets the machine-readable error code.
func (p *Problem) WithCode(code string) *Problem {
	p.Code = code
	return p
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors adds field errors to the Problem.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// statusProblems holds the type, title and default code for each status
// the API returns.
var statusProblems = map[int]struct{ typ, title, code string }{
	http.StatusBadRequest:          {ProblemTypeValidation, "Validation error", CodeValidation},
	http.StatusUnauthorized:        {ProblemTypeUnauthorized, "Unauthorized", CodeInvalidAuth},
	http.StatusForbidden:           {ProblemTypeForbidden, "Forbidden", CodeForbidden},
	http.StatusNotFound:            {ProblemTypeNotFound, "Not found", CodeNotFound},
	http.StatusTooManyRequests:     {ProblemTypeTooManyRequests, "Too many requests", CodeRateLimited},
	http.StatusInternalServerError: {ProblemTypeInternal, "Internal server error", CodeInternal},
	http.StatusServiceUnavailable:  {ProblemTypeUnavailable, "Service unavailable", CodeUnavailable},
}

func newStatusProblem(status int, traceID, detail string) *Problem {
	k := statusProblems[status]
	p := NewProblem(k.typ, k.title, status, traceID)
	p.Code = k.code
	p.Detail = detail
	return p
}

// NewBadRequest creates a 400 problem with an explicit code.
func NewBadRequest(traceID, code, detail string, errors []FieldError) *Problem {
	return newStatusProblem(http.StatusBadRequest, traceID, detail).WithCode(code).WithErrors(errors)
}

// NewUnauthorized creates a 401 problem with an explicit code.
func NewUnauthorized(traceID, code, detail string) *Problem {
	return newStatusProblem(http.StatusUnauthorized, traceID, detail).WithCode(code)
}

// NewForbidden creates a 403 problem.
func NewForbidden(traceID, detail string) *Problem {
	return newStatusProblem(http.StatusForbidden, traceID, detail)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return newStatusProblem(http.StatusNotFound, traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return newStatusProblem(http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return newStatusProblem(http.StatusInternalServerError, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return newStatusProblem(http.StatusServiceUnavailable, traceID, detail)
}
