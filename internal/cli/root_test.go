package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasnoah/autocoder/internal/llm"
)

// resetFlags restores every flag to its default so tests do not leak
// values into each other through the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

const testConfig = `classify:
  categorizer: none
  approval: auto
verify:
  command: "exit 0"
  parser: generic
log:
  level: error
`

// newProject creates a project root with a config and two files.
func newProject(t *testing.T, config string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	files := map[string]string{
		".autocoder/config.yaml": config,
		"a.py":                   "x = 1\n",
		"test_a.py":              "def test_x():\n    pass\n",
		"cache.pyc":              "\x00",
	}
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"init", "task", "files", "context", "verify",
		"config", "db", "history", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	subcmds := [][]string{
		{"files", "classify"}, {"files", "show"},
		{"context", "build"},
		{"config", "validate"}, {"config", "show"},
		{"db", "migrate"}, {"db", "reset"},
		{"history", "list"}, {"history", "show"}, {"history", "stats"},
	}
	for _, sub := range subcmds {
		out, err := executeCommand(append(sub, "--help")...)
		if err != nil {
			t.Errorf("%v --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("%v --help produced no output", sub)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

func TestInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()

	out, err := executeCommand("init", "--root", root, "--templates")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".autocoder", "config.yaml")); err != nil {
		t.Errorf("config not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".autocoder", "templates", "generate.md")); err != nil {
		t.Errorf("templates not installed: %v", err)
	}
	if !strings.Contains(out, "Wrote") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = executeCommand("init", "--root", root)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("second init should keep the config, got: %s", out)
	}
}

func TestConfigValidateAndShow(t *testing.T) {
	root := newProject(t, testConfig)

	out, err := executeCommand("config", "validate", "--root", root)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = executeCommand("config", "show", "--root", root)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "categorizer: none") || !strings.Contains(out, "max_iterations: 5") {
		t.Errorf("show should print merged config, got:\n%s", out)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	root := newProject(t, "classify:\n  depth: sideways\nlog:\n  level: error\n")

	out, err := executeCommand("config", "validate", "--root", root)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "classify.depth") {
		t.Errorf("output should name the bad field, got: %s", out)
	}
}

func TestFilesClassifyShowAndContext(t *testing.T) {
	root := newProject(t, testConfig)

	if _, err := executeCommand("files", "show", "--root", root); err == nil {
		t.Fatal("files show should fail before classification")
	}

	out, err := executeCommand("files", "classify", "--root", root)
	if err != nil {
		t.Fatalf("classify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved 2 included") {
		t.Errorf("unexpected classify output: %s", out)
	}

	out, err = executeCommand("files", "show", "--root", root)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "  - a.py") || !strings.Contains(out, "  - cache.pyc") {
		t.Errorf("unexpected lists:\n%s", out)
	}

	out, err = executeCommand("context", "build", "--root", root)
	if err != nil {
		t.Fatalf("context build: %v", err)
	}
	if !strings.Contains(out, "#File a.py:") || strings.Contains(out, "cache.pyc") {
		t.Errorf("unexpected context:\n%s", out)
	}
}

func TestVerifyCommand(t *testing.T) {
	root := newProject(t, testConfig)
	out, err := executeCommand("verify", "--root", root)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[PASS]") {
		t.Errorf("unexpected output: %s", out)
	}

	failing := strings.Replace(testConfig, `"exit 0"`, `"echo boom; exit 3"`, 1)
	root = newProject(t, failing)
	out, err = executeCommand("verify", "--root", root)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if !strings.Contains(out, "[FAIL]") || !strings.Contains(out, "boom") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestDBAndHistory(t *testing.T) {
	root := newProject(t, testConfig)

	if _, err := executeCommand("db", "migrate", "--root", root); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".autocoder", "history.db")); err != nil {
		t.Errorf("history db not created: %v", err)
	}

	out, err := executeCommand("history", "list", "--root", root)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = executeCommand("history", "stats", "--root", root)
	if err != nil {
		t.Fatalf("history stats: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("unexpected stats output: %s", out)
	}

	if _, err := executeCommand("history", "show", "missing", "--root", root); err == nil {
		t.Error("expected error for unknown run")
	}
	if _, err := executeCommand("db", "reset", "--root", root); err == nil {
		t.Error("reset without --yes should fail")
	}
	if _, err := executeCommand("db", "reset", "--yes", "--root", root); err != nil {
		t.Errorf("reset: %v", err)
	}
}

func TestTask_NoAPIKey(t *testing.T) {
	root := newProject(t, testConfig)
	for _, k := range []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"} {
		t.Setenv(k, "")
	}

	_, err := executeCommand("task", "Fix the bug in a.py", "--root", root)
	if !errors.Is(err, llm.ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestLLMClient_ReadsDotEnv(t *testing.T) {
	root := newProject(t, testConfig)
	for _, k := range []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"} {
		t.Setenv(k, "")
	}
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("ANTHROPIC_API_KEY=sk-test\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rootDir = root
	t.Cleanup(func() { rootDir = "." })
	e, cleanup, err := openEnv()
	if err != nil {
		t.Fatalf("openEnv: %v", err)
	}
	defer cleanup()

	client, err := e.llmClient(context.Background())
	if err != nil {
		t.Fatalf("llmClient: %v", err)
	}
	if client == nil {
		t.Fatal("expected a client")
	}
}

func TestFilesClassify_ManifestSource(t *testing.T) {
	cfg := strings.Replace(testConfig, "classify:\n", "classify:\n  source: manifest\n", 1)
	root := newProject(t, cfg)

	_, err := executeCommand("files", "classify", "--root", root)
	if err == nil || !strings.Contains(err.Error(), "MANIFEST.in") {
		t.Fatalf("expected missing manifest error, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "MANIFEST.in"), []byte("include a.py\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand("files", "classify", "--root", root)
	if err != nil {
		t.Fatalf("classify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved 1 included") {
		t.Errorf("unexpected classify output: %s", out)
	}
}
