package middleware

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/clearskies/clearskies/internal/api/models"
)

// DefaultMaxBodyBytes bounds request bodies. Dashboard requests carry a
// location and a few options, so anything larger is a mistake or abuse.
const DefaultMaxBodyBytes = 64 << 10

// JSONBody guards request bodies on POST, PUT and PATCH. An explicit
// non-JSON Content-Type is rejected with 415; a missing one is accepted
// because older clients omit it. Bodies over maxBytes are rejected with 413
// when Content-Length says so up front, and cut off at maxBytes otherwise.
func JSONBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || mediaType != "application/json" {
					problem := models.NewProblem(
						models.ProblemTypeUnsupported,
						"Unsupported media type",
						http.StatusUnsupportedMediaType,
						GetRequestID(r.Context()),
					).WithCode(models.CodeUnsupportedType).
						WithDetail("Content-Type must be application/json").
						WithInstance(r.URL.Path)
					problem.Write(w)
					return
				}
			}

			if r.ContentLength > maxBytes {
				problem := models.NewProblem(
					models.ProblemTypeBodyTooLarge,
					"Request body too large",
					http.StatusRequestEntityTooLarge,
					GetRequestID(r.Context()),
				).WithCode(models.CodeBodyTooLarge).
					WithDetail(fmt.Sprintf("Request body must not exceed %d bytes", maxBytes)).
					WithInstance(r.URL.Path)
				problem.Write(w)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
