package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures GeminiClient.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient calls Gemini through the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var cfg *genai.GenerateContentConfig
	if maxOutputTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(maxOutputTokens)}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", &ServiceError{Provider: ProviderGemini, Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &ServiceError{Provider: ProviderGemini, Err: ErrEmptyResponse}
	}
	return text, nil
}
