package openaiapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responsesServer(t *testing.T, body string, capture func(r *http.Request, payload map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(raw, &payload))
		if capture != nil {
			capture(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientComplete_SendsPayloadAndParsesOutput(t *testing.T) {
	const envKey = "SOCRATIC_OPENAI_TEST_KEY"
	t.Setenv(envKey, "test-api-key")

	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := responsesServer(t, `{
		"error": {"code": "", "message": ""},
		"output": [
			{
				"type": "message",
				"role": "assistant",
				"content": [
					{"type": "output_text", "text": "[{\"category\":\"goals\"}]", "annotations": []}
				]
			}
		],
		"usage": {"input_tokens": 12, "output_tokens": 7}
	}`, func(r *http.Request, payload map[string]any) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotBody = payload
	})

	client, err := NewClient(Config{Model: "gpt-5-mini", BaseURL: srv.URL, APIKeyEnv: envKey}, srv.Client())
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), CompletionRequest{
		Instructions: "Output only JSON.",
		Input:        "Extract specifications.",
	})
	require.NoError(t, err)

	assert.Equal(t, `[{"category":"goals"}]`, out.OutputText)
	assert.Equal(t, int64(12), out.InputTokens)
	assert.Equal(t, int64(7), out.OutputTokens)
	assert.Equal(t, "Bearer test-api-key", gotAuth)
	assert.Equal(t, "/responses", gotPath)
	assert.Equal(t, "gpt-5-mini", gotBody["model"])
	assert.Equal(t, "Output only JSON.", gotBody["instructions"])
	assert.Equal(t, "Extract specifications.", gotBody["input"])
}

func TestClientPrompt_UsesDefaultInstructions(t *testing.T) {
	var gotBody map[string]any
	srv := responsesServer(t, `{
		"output": [
			{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "What is the goal?", "annotations": []}]}
		]
	}`, func(_ *http.Request, payload map[string]any) {
		gotBody = payload
	})

	client, err := NewClient(Config{Model: "gpt-5-mini", BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	require.NoError(t, err)

	text, err := client.Prompt(context.Background(), "ask")
	require.NoError(t, err)
	assert.Equal(t, "What is the goal?", text)
	assert.Equal(t, defaultInstructions, gotBody["instructions"])
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("SOCRATIC_OPENAI_MISSING_KEY", "")

	_, err := NewClient(Config{Model: "gpt-5-mini", BaseURL: "http://127.0.0.1", APIKeyEnv: "SOCRATIC_OPENAI_MISSING_KEY"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

func TestClientComplete_ErrorsWithoutOutputText(t *testing.T) {
	srv := responsesServer(t, `{"error": {"code": "", "message": ""}, "output": []}`, nil)

	client, err := NewClient(Config{Model: "gpt-5-mini", BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Input: "{}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output text")
}

func TestClientComplete_SurfacesResponseError(t *testing.T) {
	srv := responsesServer(t, `{"error": {"code": "server_error", "message": "model overloaded"}, "output": []}`, nil)

	client, err := NewClient(Config{Model: "gpt-5-mini", BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Input: "{}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}
