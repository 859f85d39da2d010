package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	recognizedProviders   = map[string]bool{"anthropic": true, "gemini": true}
	recognizedParsers     = map[string]bool{"generic": true, "pytest": true, "gotest": true, "vitest": true}
	recognizedSources     = map[string]bool{"listing": true, "manifest": true}
	recognizedDepths      = map[string]bool{"top-level": true, "recursive": true}
	recognizedCategorizer = map[string]bool{"llm": true, "none": true}
	recognizedApprovals   = map[string]bool{"prompt": true, "tui": true, "auto": true}
	recognizedPolicies    = map[string]bool{"defaults-win": true, "user-wins": true}
	recognizedDrivers     = map[string]bool{"sqlite": true, "postgres": true, "none": true}
	recognizedLevels      = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	recognizedFormats     = map[string]bool{"console": true, "json": true}
)

// Validate checks a Config for invalid values.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(field, value string, allowed map[string]bool) {
		if !allowed[value] {
			add(field, "unrecognized value %q", value)
		}
	}
	duration := func(field, value string) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			add(field, "invalid duration %q", value)
		} else if d <= 0 {
			add(field, "must be positive")
		}
	}

	oneOf("llm.provider", cfg.LLM.Provider, recognizedProviders)
	if cfg.LLM.MaxOutputTokens < 0 {
		add("llm.max_output_tokens", "must not be negative")
	}
	duration("llm.timeout", cfg.LLM.Timeout)

	if cfg.Pipeline.MaxIterations < 0 {
		add("pipeline.max_iterations", "must not be negative")
	}
	if cfg.Context.MaxFileBytes < 0 {
		add("context.max_file_bytes", "must not be negative")
	}

	if cfg.Verify.Command == "" {
		add("verify.command", "is required")
	}
	if cfg.Verify.Parser != "" {
		oneOf("verify.parser", cfg.Verify.Parser, recognizedParsers)
	}
	duration("verify.timeout", cfg.Verify.Timeout)

	oneOf("classify.source", cfg.Classify.Source, recognizedSources)
	oneOf("classify.depth", cfg.Classify.Depth, recognizedDepths)
	oneOf("classify.categorizer", cfg.Classify.Categorizer, recognizedCategorizer)
	oneOf("classify.approval", cfg.Classify.Approval, recognizedApprovals)
	oneOf("ignore.policy", cfg.Ignore.Policy, recognizedPolicies)

	oneOf("history.driver", cfg.History.Driver, recognizedDrivers)
	if cfg.History.Driver == "postgres" && cfg.History.DSN == "" {
		add("history.dsn", "is required for the postgres driver")
	}

	oneOf("log.level", cfg.Log.Level, recognizedLevels)
	oneOf("log.format", cfg.Log.Format, recognizedFormats)
	return errs
}
