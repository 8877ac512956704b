// Package response writes the API's two response shapes: the success
// envelope and RFC 7807 problems. Every response echoes X-Request-Id.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clearskies/clearskies/internal/api/middleware"
	"github.com/clearskies/clearskies/internal/api/models"
)

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// JSON writes data as-is, without the envelope. Used by health endpoints
// whose shape is fixed by external probes.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK wraps data in the success envelope.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusOK, models.Envelope{
		Success:   true,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes 400 with a machine-readable code and optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, code, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(requestID(r), code, detail, errors))
}

// Unauthorized writes 401.
func Unauthorized(w http.ResponseWriter, r *http.Request, code, detail string) {
	Error(w, r, models.NewUnauthorized(requestID(r), code, detail))
}

// Forbidden writes 403.
func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewForbidden(requestID(r), detail))
}

// NotFound writes 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(requestID(r), detail))
}

// InternalError writes 500. detail reaches the client, so it must not carry
// the underlying error.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(requestID(r), detail))
}

// ServiceUnavailable writes 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(requestID(r), detail))
}

// DecodeJSON decodes the request body into dst. It returns ErrEmptyBody for
// a missing body and *http.MaxBytesError when the body exceeded the limit
// set by middleware.JSONBody.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}

// DecodeError writes the problem for a DecodeJSON failure: 413 for an
// oversized body, otherwise 400 with code and detail.
func DecodeError(w http.ResponseWriter, r *http.Request, err error, code, detail string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, r, models.NewProblem(
			models.ProblemTypeBodyTooLarge,
			"Request body too large",
			http.StatusRequestEntityTooLarge,
			requestID(r),
		).WithCode(models.CodeBodyTooLarge).
			WithDetail(fmt.Sprintf("Request body must not exceed %d bytes", tooLarge.Limit)))
		return
	}
	BadRequest(w, r, code, detail, nil)
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := requestID(r); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}
