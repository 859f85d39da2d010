package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AnthropicConfig configures AnthropicClient.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	Logger  *zap.Logger
}

// DefaultAnthropicConfig returns the defaults for the Messages API.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.anthropic.com/v1",
		Model:      "claude-sonnet-4-5",
		Timeout:    5 * time.Minute,
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

// AnthropicClient calls the Anthropic Messages API over HTTP.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient creates a client. Zero fields in cfg take the defaults.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	def := DefaultAnthropicConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Logger,
	}, nil
}

// Complete sends prompt as a single user message. Rate limits and 5xx
// responses are retried with exponential backoff.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	if maxOutputTokens <= 0 {
		maxOutputTokens = 4096
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: maxOutputTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", c.fail(fmt.Errorf("marshal request: %w", err))
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.log.Debug("retrying anthropic request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", c.fail(ctx.Err())
			case <-time.After(delay):
			}
		}

		text, retry, err := c.do(ctx, body)
		if err == nil {
			c.log.Debug("anthropic completion",
				zap.String("model", c.model),
				zap.Int("prompt_bytes", len(prompt)),
				zap.Int("response_bytes", len(text)),
				zap.Duration("elapsed", time.Since(start)))
			return text, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return "", c.fail(lastErr)
}

func (c *AnthropicClient) do(ctx context.Context, body []byte) (text string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(data, 200))
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 500))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	var b strings.Builder
	for _, part := range parsed.Content {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", false, ErrEmptyResponse
	}
	return b.String(), false, nil
}

func (c *AnthropicClient) fail(err error) error {
	return &ServiceError{Provider: ProviderAnthropic, Err: err}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
