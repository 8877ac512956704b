package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/narration"
	"github.com/clearskies/clearskies/internal/narration/gemini"
)

func TestClient_Generate(t *testing.T) {
	var gotPath, gotKey, gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")

		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPrompt = body.Contents[0].Parts[0].Text

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + "```json\\n{\\\"ok\\\":true}\\n```" + `"}]}}]}`))
	}))
	defer server.Close()

	client := gemini.NewClient(gemini.ClientConfig{
		APIKey:     "secret",
		BaseURL:    server.URL,
		Model:      "test-model",
		HTTPClient: server.Client(),
	})

	text, err := client.Generate(context.Background(), "narrate this")
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, "/models/test-model:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "narrate this", gotPrompt)
}

func TestClient_NotConfigured(t *testing.T) {
	client := gemini.NewClient(gemini.ClientConfig{})

	_, err := client.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, narration.ErrNotConfigured)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
		malformed   bool
	}{
		{"too many requests", http.StatusTooManyRequests, `{}`, true, false},
		{"quota message", http.StatusForbidden, `{"error":{"code":403,"message":"Quota exceeded for project"}}`, true, false},
		{"resource exhausted", http.StatusBadRequest, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, true, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid argument"}}`, false, false},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := gemini.NewClient(gemini.ClientConfig{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})

			_, err := client.Generate(context.Background(), "prompt")
			require.Error(t, err)
			assert.Equal(t, tt.rateLimited, errors.Is(err, narration.ErrRateLimited))
			assert.Equal(t, tt.malformed, errors.Is(err, narration.ErrMalformedResponse))
		})
	}
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "gemini", gemini.NewClient(gemini.ClientConfig{}).Name())
}
