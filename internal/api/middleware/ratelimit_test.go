package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/api/middleware"
	"github.com/clearskies/clearskies/internal/auth"
)

func sendFrom(handler http.Handler, remoteAddr, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/forecast", http.NoBody)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLimitByIP(t *testing.T) {
	handler := middleware.LimitByIP(middleware.PerMinute(3))(okHandler)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, sendFrom(handler, "10.0.0.1:1234", "").Code, "request %d", i+1)
	}

	rec := sendFrom(handler, "10.0.0.1:1234", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other clients keep their own budget
	assert.Equal(t, http.StatusOK, sendFrom(handler, "10.0.0.2:1234", "").Code)
}

func TestLimitByIP_RetryAfterRoundsUp(t *testing.T) {
	handler := middleware.LimitByIP(middleware.RateLimit{Requests: 1, Window: 1500 * time.Millisecond})(okHandler)

	sendFrom(handler, "10.0.1.1:1234", "")
	rec := sendFrom(handler, "10.0.1.1:1234", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestLimitByCaller(t *testing.T) {
	svc := createTestAuthService(t, testAPIKey)
	issued, err := svc.IssueDeviceToken(context.Background(), &auth.DeviceTokenRequest{DeviceID: "android-1"})
	require.NoError(t, err)

	handler := middleware.Auth(svc)(middleware.LimitByCaller(middleware.PerMinute(2))(okHandler))

	// A device is limited across networks
	assert.Equal(t, http.StatusOK, sendFrom(handler, "198.51.100.1:1000", issued.AccessToken).Code)
	assert.Equal(t, http.StatusOK, sendFrom(handler, "198.51.100.2:1000", issued.AccessToken).Code)
	assert.Equal(t, http.StatusTooManyRequests, sendFrom(handler, "198.51.100.3:1000", issued.AccessToken).Code)

	// API key callers fall back to their IP
	assert.Equal(t, http.StatusOK, sendFrom(handler, "198.51.100.1:1000", testAPIKey).Code)
	assert.Equal(t, http.StatusOK, sendFrom(handler, "198.51.100.1:1000", testAPIKey).Code)
	assert.Equal(t, http.StatusTooManyRequests, sendFrom(handler, "198.51.100.1:1000", testAPIKey).Code)
	assert.Equal(t, http.StatusOK, sendFrom(handler, "198.51.100.4:1000", testAPIKey).Code)
}

func TestLimit_ProblemResponse(t *testing.T) {
	handler := middleware.RequestID(middleware.LimitByIP(middleware.PerMinute(1))(okHandler))

	sendFrom(handler, "203.0.113.1:1234", "")
	rec := sendFrom(handler, "203.0.113.1:1234", "")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "/api/forecast", body["instance"])
	assert.NotEmpty(t, body["traceId"])
}

func TestRateLimits_WithDefaults(t *testing.T) {
	limits := middleware.RateLimits{
		Dashboard: middleware.PerMinute(5),
		Sections:  middleware.RateLimit{Requests: 50},
	}.WithDefaults()

	assert.Equal(t, middleware.PerMinute(10), limits.Token)
	assert.Equal(t, middleware.PerMinute(5), limits.Dashboard)
	assert.Equal(t, middleware.PerMinute(50), limits.Sections)
	assert.Equal(t, middleware.DefaultRateLimits().Admin, limits.Admin)
}
