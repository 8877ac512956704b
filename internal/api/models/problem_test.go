package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	).WithCode(models.CodeOutOfBounds).
		WithDetail("latitude must be between -90 and 90").
		WithInstance("/dashboard").
		WithErrors([]models.FieldError{{Field: "latitude", Message: "out of range", Code: "OUT_OF_RANGE"}})

	assert.False(t, p.Success)
	assert.Equal(t, models.CodeOutOfBounds, p.Code)
	assert.Equal(t, "latitude must be between -90 and 90", p.Detail)
	assert.Equal(t, "/dashboard", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "latitude", p.Errors[0].Field)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", models.CodeMissingLocation, "latitude and longitude are required", nil)
	p.Instance = "/api/forecast"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "MISSING_LOCATION", body["code"])
	assert.Equal(t, "/api/forecast", body["instance"])
	assert.Equal(t, "req_test123", body["traceId"])
	assert.NotContains(t, body, "errors")
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		typ     string
		status  int
		code    string
	}{
		{"bad request", models.NewBadRequest("req_1", models.CodeInvalidLocation, "d", nil), models.ProblemTypeValidation, http.StatusBadRequest, models.CodeInvalidLocation},
		{"unauthorized", models.NewUnauthorized("req_1", models.CodeInvalidToken, "d"), models.ProblemTypeUnauthorized, http.StatusUnauthorized, models.CodeInvalidToken},
		{"forbidden", models.NewForbidden("req_1", "d"), models.ProblemTypeForbidden, http.StatusForbidden, models.CodeForbidden},
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, http.StatusNotFound, models.CodeNotFound},
		{"too many requests", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, http.StatusTooManyRequests, models.CodeRateLimited},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, http.StatusInternalServerError, models.CodeInternal},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, http.StatusServiceUnavailable, models.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, tt.code, tt.problem.Code)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req_1", tt.problem.TraceID)
		})
	}
}
