package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPrompt_ParsesCandidateText(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Which users matter most?"}]}}],
			"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 4}
		}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		Model:   "gemini-2.5-flash",
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, srv.Client())
	require.NoError(t, err)

	text, err := client.Prompt(context.Background(), "ask about goals")
	require.NoError(t, err)
	assert.Equal(t, "Which users matter most?", text)
	assert.True(t, strings.HasSuffix(gotPath, "gemini-2.5-flash:generateContent"), gotPath)
	assert.Equal(t, "test-key", gotKey)
}

func TestClientPrompt_ErrorsOnEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	require.NoError(t, err)

	_, err = client.Prompt(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not contain text")
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("SOCRATIC_GEMINI_MISSING_KEY", "")
	_, err := NewClient(context.Background(), Config{APIKeyEnv: "SOCRATIC_GEMINI_MISSING_KEY"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}
