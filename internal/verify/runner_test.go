package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockCmd records calls and returns configured results.
type mockCmd struct {
	calls    []mockCall
	stdout   string
	stderr   string
	exitCode int
	err      error
	block    bool
}

type mockCall struct {
	Dir     string
	Command string
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command})
	if m.block {
		<-ctx.Done()
		return "partial output", "", -1, ctx.Err()
	}
	return m.stdout, m.stderr, m.exitCode, m.err
}

func TestVerify_Success(t *testing.T) {
	mock := &mockCmd{stdout: "==== 3 passed in 0.10s ====\n"}
	v := New(mock, Options{})

	res := v.Verify(context.Background(), "/proj")

	if !res.Succeeded {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Detail != "All tests passed" {
		t.Errorf("detail = %q", res.Detail)
	}
	if len(mock.calls) != 1 || mock.calls[0].Dir != "/proj" || mock.calls[0].Command != "pytest" {
		t.Errorf("unexpected calls: %+v", mock.calls)
	}
	if res.Summary != "3 passed, 0 failed, 0 errors, 0 skipped" {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestVerify_TestFailure(t *testing.T) {
	mock := &mockCmd{
		stdout:   "FAILED tests/test_a.py::test_add - assert 1 == 2\n==== 1 failed, 2 passed in 0.20s ====\n",
		exitCode: 1,
	}
	res := New(mock, Options{Command: "python -m pytest -q"}).Verify(context.Background(), "/proj")

	if res.Succeeded || res.Environment {
		t.Fatalf("expected plain failure, got %+v", res)
	}
	if !strings.Contains(res.Detail, "tests/test_a.py::test_add") {
		t.Errorf("detail missing failing test: %q", res.Detail)
	}
	if IsEnvironmentDetail(res.Detail) {
		t.Error("test failure must not look like an environment failure")
	}
}

func TestVerify_EnvironmentFailures(t *testing.T) {
	tests := []struct {
		name string
		mock *mockCmd
	}{
		{"exec error", &mockCmd{err: errors.New("exec: \"sh\": executable file not found")}},
		{"command not found", &mockCmd{stderr: "sh: 1: pytest: not found", exitCode: 127}},
		{"not executable", &mockCmd{stderr: "permission denied", exitCode: 126}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(tt.mock, Options{}).Verify(context.Background(), "/proj")
			if res.Succeeded {
				t.Fatal("expected failure")
			}
			if !res.Environment {
				t.Error("expected Environment=true")
			}
			if !IsEnvironmentDetail(res.Detail) {
				t.Errorf("detail should carry the environment prefix: %q", res.Detail)
			}
		})
	}
}

func TestVerify_Timeout(t *testing.T) {
	mock := &mockCmd{block: true}
	res := New(mock, Options{Timeout: 10 * time.Millisecond}).Verify(context.Background(), "/proj")
	if res.Succeeded || res.Environment {
		t.Fatalf("timeout should be a plain failure, got %+v", res)
	}
	if !strings.Contains(res.Detail, "timed out") || !strings.Contains(res.Detail, "partial output") {
		t.Errorf("detail = %q", res.Detail)
	}
}

func TestVerify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(&mockCmd{block: true}, Options{}).Verify(ctx, "/proj")
	if !res.Environment {
		t.Errorf("cancelled run should be reported as environment, got %+v", res)
	}
}

func TestExecRunner(t *testing.T) {
	r := &ExecRunner{}
	dir := t.TempDir()

	stdout, _, code, err := r.Run(context.Background(), dir, "echo hello")
	if err != nil || code != 0 || strings.TrimSpace(stdout) != "hello" {
		t.Errorf("echo: stdout=%q code=%d err=%v", stdout, code, err)
	}

	_, stderr, code, err := r.Run(context.Background(), dir, "echo oops >&2; exit 3")
	if err != nil || code != 3 || strings.TrimSpace(stderr) != "oops" {
		t.Errorf("exit 3: stderr=%q code=%d err=%v", stderr, code, err)
	}

	_, _, code, err = r.Run(context.Background(), dir, "definitely-not-a-command-xyz")
	if err != nil || code != 127 {
		t.Errorf("missing command: code=%d err=%v", code, err)
	}
}

func TestDefaultParserFor(t *testing.T) {
	tests := map[string]string{
		"pytest":                         "pytest",
		"pytest -q tests/":               "pytest",
		"python -m pytest":               "pytest",
		".venv/bin/pytest":               "pytest",
		"go test ./...":                  "gotest",
		"npx vitest run --reporter=json": "vitest",
		"npx vitest run":                 "generic",
		"make test":                      "generic",
	}
	for cmd, want := range tests {
		if got := DefaultParserFor(cmd); got != want {
			t.Errorf("DefaultParserFor(%q) = %q, want %q", cmd, got, want)
		}
	}
}
