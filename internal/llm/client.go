// Package llm provides the generation service collaborator: a prompt goes
// in, text or an error comes out.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Client is the generation service contract.
type Client interface {
	Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}

// ServiceError is returned for any failed or empty generation call.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ErrEmptyResponse marks a call that succeeded but produced no text.
var ErrEmptyResponse = errors.New("empty response")

// ErrNoAPIKey is returned by constructors when no credential was supplied.
var ErrNoAPIKey = errors.New("API key not configured")

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and tunes a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderAnthropic, "":
		c, err := NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderGemini:
		c, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
