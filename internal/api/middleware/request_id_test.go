package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearskies/clearskies/internal/api/middleware"
)

func serveRequestID(t *testing.T, incoming string) (header, inContext string) {
	t.Helper()
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inContext = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/personas", nil)
	if incoming != "" {
		req.Header.Set(middleware.RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Header().Get(middleware.RequestIDHeader), inContext
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"caller id kept", "ios-7F3A.42:retry_1", true},
		{"too long replaced", strings.Repeat("a", 65), false},
		{"spaces replaced", "two words", false},
		{"header injection replaced", "abc\r\nX-Evil: 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, ctxID := serveRequestID(t, tt.incoming)
			assert.Equal(t, header, ctxID)
			if tt.keep {
				assert.Equal(t, tt.incoming, header)
				return
			}
			assert.True(t, strings.HasPrefix(header, "req_"), header)
			assert.Len(t, header, 36)
		})
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := middleware.NewRequestID()
		assert.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}

func TestGetRequestID_MissingContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
