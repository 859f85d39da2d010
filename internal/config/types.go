// Package config loads the YAML configuration that tunes a run.
package config

import "time"

// Config is the top-level configuration parsed from .autocoder/config.yaml.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Context  ContextConfig  `yaml:"context"`
	Verify   VerifyConfig   `yaml:"verify"`
	Classify ClassifyConfig `yaml:"classify"`
	Ignore   IgnoreConfig   `yaml:"ignore"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig selects the generation service.
type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url,omitempty"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	Timeout         string `yaml:"timeout"`
	// APIKeyEnv names an extra environment variable checked before the
	// provider's standard ones.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// PipelineConfig bounds the generate/apply/verify loop.
type PipelineConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	// Artifacts controls writing prompts, replies and verification output
	// under .autocoder/runs. Defaults to true.
	Artifacts *bool `yaml:"artifacts,omitempty"`
}

// ContextConfig controls context assembly.
type ContextConfig struct {
	// MaxFileBytes truncates each file body in the prompt; 0 disables.
	MaxFileBytes int `yaml:"max_file_bytes"`
}

// VerifyConfig describes the test command.
type VerifyConfig struct {
	Command string `yaml:"command"`
	Parser  string `yaml:"parser,omitempty"`
	Timeout string `yaml:"timeout"`
}

// ClassifyConfig controls the item classifier.
type ClassifyConfig struct {
	Source      string `yaml:"source"`      // listing | manifest
	Depth       string `yaml:"depth"`       // top-level | recursive
	Categorizer string `yaml:"categorizer"` // llm | none
	Approval    string `yaml:"approval"`    // prompt | tui | auto
}

// IgnoreConfig adds rules to the built-in ignore defaults.
type IgnoreConfig struct {
	Patterns      []string `yaml:"patterns,omitempty"`
	SkipGitignore bool     `yaml:"skip_gitignore,omitempty"`
	// Policy is defaults-win (user negations cannot re-include a default
	// match) or user-wins.
	Policy string `yaml:"policy"`
}

// HistoryConfig selects where run history is recorded.
type HistoryConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres | none
	DSN    string `yaml:"dsn"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
	File   string `yaml:"file,omitempty"`
}

// ArtifactsEnabled reports whether per-attempt artifacts are written.
func (p PipelineConfig) ArtifactsEnabled() bool {
	return p.Artifacts == nil || *p.Artifacts
}

// TimeoutDuration parses Timeout, returning 0 if unset or invalid.
func (l LLMConfig) TimeoutDuration() time.Duration {
	return parseDuration(l.Timeout)
}

// TimeoutDuration parses Timeout, returning 0 if unset or invalid.
func (v VerifyConfig) TimeoutDuration() time.Duration {
	return parseDuration(v.Timeout)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
