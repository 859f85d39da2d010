package verify

import (
	"fmt"
	"regexp"
	"strings"
)

// GoTestParser reads plain `go test` output.
type GoTestParser struct{}

var (
	goFailTestRe = regexp.MustCompile(`(?m)^\s*--- FAIL: (\S+)`)
	goFailPkgRe  = regexp.MustCompile(`(?m)^FAIL[ \t]+(\S+)`)
	goOkPkgRe    = regexp.MustCompile(`(?m)^ok[ \t]+(\S+)`)
	goBuildRe    = regexp.MustCompile(`(?m)\[build failed\]|\[setup failed\]`)
)

func (p *GoTestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	out := combine(stdout, stderr)
	failedTests := goFailTestRe.FindAllStringSubmatch(out, -1)
	failedPkgs := goFailPkgRe.FindAllStringSubmatch(out, -1)
	okPkgs := goOkPkgRe.FindAllString(out, -1)

	summary := fmt.Sprintf("%d packages ok, %d packages failed, %d tests failed",
		len(okPkgs), len(failedPkgs), len(failedTests))
	if goBuildRe.MatchString(out) {
		summary += " (build failed)"
	}
	if exitCode == 0 && len(failedTests) == 0 {
		return ParseResult{Passed: true, Summary: summary}
	}

	var detail strings.Builder
	if len(failedTests) > 0 {
		names := make([]string, len(failedTests))
		for i, m := range failedTests {
			names[i] = m[1]
		}
		fmt.Fprintf(&detail, "Failing tests: %s\n\n", strings.Join(names, ", "))
	}
	detail.WriteString(tail(out))
	return ParseResult{Summary: summary, Detail: detail.String()}
}
