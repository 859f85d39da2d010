package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dir is the project-local metadata directory.
const Dir = ".autocoder"

// FileName is the config file name inside Dir.
const FileName = "config.yaml"

// Default values.
const (
	DefaultProvider        = "anthropic"
	DefaultMaxIterations   = 5
	DefaultMaxOutputTokens = 4096
	DefaultLLMTimeout      = "5m"
	DefaultVerifyCommand   = "pytest"
	DefaultVerifyTimeout   = "10m"
	DefaultHistoryDSN      = Dir + "/history.db"
)

// Load reads and parses the configuration at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadDefault searches <projectRoot>/.autocoder/config.yaml, then
// ~/.autocoder/config.yaml, and loads the first one found. With neither
// present it returns Default() and an empty path.
func LoadDefault(projectRoot string) (*Config, string, error) {
	candidates := []string{filepath.Join(projectRoot, Dir, FileName)}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, Dir, FileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Write stores cfg at path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultProvider
	}
	if cfg.LLM.MaxOutputTokens == 0 {
		cfg.LLM.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.LLM.Timeout == "" {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.Pipeline.MaxIterations == 0 {
		cfg.Pipeline.MaxIterations = DefaultMaxIterations
	}
	if cfg.Verify.Command == "" {
		cfg.Verify.Command = DefaultVerifyCommand
	}
	if cfg.Verify.Timeout == "" {
		cfg.Verify.Timeout = DefaultVerifyTimeout
	}
	if cfg.Classify.Source == "" {
		cfg.Classify.Source = "listing"
	}
	if cfg.Classify.Depth == "" {
		cfg.Classify.Depth = "top-level"
	}
	if cfg.Classify.Categorizer == "" {
		cfg.Classify.Categorizer = "llm"
	}
	if cfg.Classify.Approval == "" {
		cfg.Classify.Approval = "prompt"
	}
	if cfg.Ignore.Policy == "" {
		cfg.Ignore.Policy = "defaults-win"
	}
	if cfg.History.Driver == "" {
		cfg.History.Driver = "sqlite"
	}
	if cfg.History.DSN == "" && cfg.History.Driver == "sqlite" {
		cfg.History.DSN = DefaultHistoryDSN
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
