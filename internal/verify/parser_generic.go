package verify

import "fmt"

// GenericParser reports the exit code and keeps the tail of the output.
type GenericParser struct{}

// maxOutputLen caps how much output a parser hands back as detail.
const maxOutputLen = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)"}
	}
	return ParseResult{
		Summary: fmt.Sprintf("exit code %d, stdout=%d bytes, stderr=%d bytes", exitCode, len(stdout), len(stderr)),
		Detail:  tail(combine(stdout, stderr)),
	}
}

func combine(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + "\n" + stderr
}

// tail keeps the end of s, where tracebacks and summaries usually are.
func tail(s string) string {
	if len(s) <= maxOutputLen {
		return s
	}
	return "…(truncated)\n" + s[len(s)-maxOutputLen:]
}
