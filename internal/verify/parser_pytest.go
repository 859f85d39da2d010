package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PytestParser reads pytest's terminal summary.
type PytestParser struct{}

var (
	// "===== 2 failed, 3 passed, 1 skipped in 0.42s ====="
	pytestSummaryRe = regexp.MustCompile(`(?m)^=+ (.*\d+ \w+.*) in [\d.]+s(?: \([^)]*\))? =+\s*$`)
	pytestCountRe   = regexp.MustCompile(`(\d+) (passed|failed|errors?|skipped|xfailed|xpassed|warnings?|deselected)`)
	pytestFailedRe  = regexp.MustCompile(`(?m)^(FAILED|ERROR) (\S+)(?: - (.*))?$`)
)

// pytest exit code 5: no tests were collected.
const pytestNoTests = 5

func (p *PytestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	out := combine(stdout, stderr)
	counts := make(map[string]int)
	if m := pytestSummaryRe.FindAllStringSubmatch(out, -1); m != nil {
		last := m[len(m)-1][1]
		for _, c := range pytestCountRe.FindAllStringSubmatch(last, -1) {
			n, _ := strconv.Atoi(c[1])
			counts[strings.TrimSuffix(c[2], "s")] += n
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d errors, %d skipped",
		counts["passed"], counts["failed"], counts["error"], counts["skipped"])
	if exitCode == pytestNoTests {
		summary = "no tests collected"
	}

	if exitCode == 0 && counts["failed"] == 0 && counts["error"] == 0 {
		return ParseResult{Passed: true, Summary: summary}
	}

	var detail strings.Builder
	if failures := pytestFailedRe.FindAllString(out, -1); len(failures) > 0 {
		detail.WriteString("Failing tests:\n")
		for _, f := range failures {
			detail.WriteString("  " + f + "\n")
		}
		detail.WriteString("\n")
	}
	detail.WriteString(tail(out))
	return ParseResult{Summary: summary, Detail: detail.String()}
}
