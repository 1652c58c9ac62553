// Package gemini is the Gemini API oracle backend.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	defaultAPIKeyEnv = "GEMINI_API_KEY"
	defaultModel     = "gemini-2.5-flash"
)

// Config is Gemini client configuration.
type Config struct {
	Model             string
	BaseURL           string
	APIKey            string
	APIKeyEnv         string
	SystemInstruction string
}

// Client sends single-turn prompts to Gemini.
type Client struct {
	model  string
	system string
	client *genai.Client
}

// NewClient constructs a Gemini client.
func NewClient(ctx context.Context, cfg Config, httpClient *http.Client) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		envKey := strings.TrimSpace(cfg.APIKeyEnv)
		if envKey == "" {
			envKey = defaultAPIKeyEnv
		}
		apiKey = strings.TrimSpace(os.Getenv(envKey))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required (set oracle.api_key or oracle.api_key_env)")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{model: model, system: strings.TrimSpace(cfg.SystemInstruction), client: client}, nil
}

// Prompt generates a single response for prompt.
func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	var gc *genai.GenerateContentConfig
	if c.system != "" {
		gc = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(c.system, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini response did not contain text")
	}

	if resp.UsageMetadata != nil {
		log.Debug().
			Str("model", c.model).
			Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("candidate_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Msg("gemini completion")
	}
	return text, nil
}
