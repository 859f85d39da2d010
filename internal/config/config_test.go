package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
llm:
  provider: gemini
  model: gemini-2.5-pro
  max_output_tokens: 8192
  timeout: 2m
pipeline:
  max_iterations: 3
  artifacts: false
context:
  max_file_bytes: 20000
verify:
  command: go test ./...
  parser: gotest
  timeout: 90s
classify:
  depth: recursive
  categorizer: none
  approval: auto
ignore:
  patterns:
    - "*.bak"
    - "!build/"
  policy: user-wins
history:
  driver: postgres
  dsn: postgres://localhost/autocoder
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), validConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.TimeoutDuration() != 2*time.Minute {
		t.Errorf("llm timeout = %v", cfg.LLM.TimeoutDuration())
	}
	if cfg.Pipeline.MaxIterations != 3 {
		t.Errorf("max_iterations = %d", cfg.Pipeline.MaxIterations)
	}
	if cfg.Pipeline.ArtifactsEnabled() {
		t.Error("artifacts should be disabled")
	}
	if cfg.Verify.TimeoutDuration() != 90*time.Second {
		t.Errorf("verify timeout = %v", cfg.Verify.TimeoutDuration())
	}
	if len(cfg.Ignore.Patterns) != 2 || cfg.Ignore.Patterns[1] != "!build/" {
		t.Errorf("ignore patterns = %v", cfg.Ignore.Patterns)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", errs)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "llm:\n  model: claude-x\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != DefaultProvider {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Pipeline.MaxIterations != DefaultMaxIterations {
		t.Errorf("max_iterations = %d", cfg.Pipeline.MaxIterations)
	}
	if !cfg.Pipeline.ArtifactsEnabled() {
		t.Error("artifacts should default to enabled")
	}
	if cfg.Verify.Command != "pytest" {
		t.Errorf("verify.command = %q", cfg.Verify.Command)
	}
	if cfg.History.Driver != "sqlite" || cfg.History.DSN != DefaultHistoryDSN {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Classify.Source != "listing" || cfg.Classify.Depth != "top-level" || cfg.Classify.Approval != "prompt" {
		t.Errorf("classify = %+v", cfg.Classify)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("defaults should validate, got %v", errs)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, t.TempDir(), "llm: [unclosed")); err == nil {
		t.Error("expected error for bad YAML")
	}
}

func TestLoadDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()

	cfg, path, err := LoadDefault(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected no config path, got %q", path)
	}
	if cfg.Pipeline.MaxIterations != DefaultMaxIterations {
		t.Error("expected defaults")
	}

	dir := filepath.Join(root, Dir)
	os.MkdirAll(dir, 0o755)
	writeConfig(t, dir, "pipeline:\n  max_iterations: 2\n")
	cfg, path, err = LoadDefault(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, FileName) {
		t.Errorf("path = %q", path)
	}
	if cfg.Pipeline.MaxIterations != 2 {
		t.Errorf("max_iterations = %d", cfg.Pipeline.MaxIterations)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), Dir, FileName)
	if err := Write(path, Default()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Verify.Command != DefaultVerifyCommand {
		t.Errorf("verify.command = %q", cfg.Verify.Command)
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "openai"
	cfg.LLM.Timeout = "soon"
	cfg.Pipeline.MaxIterations = -1
	cfg.Verify.Parser = "eslint"
	cfg.Verify.Timeout = "-5s"
	cfg.Classify.Depth = "deep"
	cfg.Classify.Source = "setup.py"
	cfg.Ignore.Policy = "whatever"
	cfg.History.Driver = "postgres"
	cfg.History.DSN = ""
	cfg.Log.Format = "xml"

	errs := Validate(cfg)
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"llm.provider", "llm.timeout", "pipeline.max_iterations", "verify.parser",
		"verify.timeout", "classify.source", "classify.depth", "ignore.policy", "history.dsn", "log.format",
	} {
		if !fields[want] {
			t.Errorf("expected validation error for %s, got %v", want, errs)
		}
	}
	if !strings.Contains(errs[0].Error(), ": ") {
		t.Errorf("unexpected error format %q", errs[0].Error())
	}
}

func TestResolveAPIKey(t *testing.T) {
	env := map[string]string{"CLAUDE_API_KEY": "claude", "CUSTOM_KEY": "custom"}
	getenv := func(k string) string { return env[k] }

	key, src, err := ResolveAPIKey(LLMConfig{Provider: "anthropic"}, getenv)
	if err != nil || key != "claude" || src != "CLAUDE_API_KEY" {
		t.Errorf("got key=%q src=%q err=%v", key, src, err)
	}

	env["ANTHROPIC_API_KEY"] = "anthropic"
	key, _, _ = ResolveAPIKey(LLMConfig{Provider: "anthropic"}, getenv)
	if key != "anthropic" {
		t.Errorf("ANTHROPIC_API_KEY should take precedence, got %q", key)
	}

	key, src, _ = ResolveAPIKey(LLMConfig{Provider: "anthropic", APIKeyEnv: "CUSTOM_KEY"}, getenv)
	if key != "custom" || src != "CUSTOM_KEY" {
		t.Errorf("custom env should win, got %q from %q", key, src)
	}

	if _, _, err := ResolveAPIKey(LLMConfig{Provider: "gemini"}, getenv); err == nil {
		t.Error("expected error when no gemini key is set")
	}
}

func TestLoadDotEnv(t *testing.T) {
	root := t.TempDir()
	content := "# credentials\nANTHROPIC_API_KEY=from-file\nexport GEMINI_API_KEY=\"quoted key\"\n"
	if err := os.WriteFile(filepath.Join(root, DotEnvFile), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	vars, err := LoadDotEnv(root)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if vars["ANTHROPIC_API_KEY"] != "from-file" || vars["GEMINI_API_KEY"] != "quoted key" {
		t.Errorf("vars = %v", vars)
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "from-file" {
		t.Error("LoadDotEnv must not modify the process environment")
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	vars, err := LoadDotEnv(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("expected no vars, got %v", vars)
	}
}

func TestResolveAPIKey_DotEnvFallback(t *testing.T) {
	process := map[string]string{}
	dotenv := map[string]string{"ANTHROPIC_API_KEY": "from-file"}
	getenv := EnvLookup(func(k string) string { return process[k] }, dotenv)

	key, src, err := ResolveAPIKey(LLMConfig{Provider: "anthropic"}, getenv)
	if err != nil || key != "from-file" || src != "ANTHROPIC_API_KEY" {
		t.Errorf("got key=%q src=%q err=%v", key, src, err)
	}

	process["ANTHROPIC_API_KEY"] = "from-process"
	key, _, _ = ResolveAPIKey(LLMConfig{Provider: "anthropic"}, getenv)
	if key != "from-process" {
		t.Errorf("process environment should win over .env, got %q", key)
	}
}
