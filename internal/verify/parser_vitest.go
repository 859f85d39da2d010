package verify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VitestParser parses vitest/jest JSON reporter output.
type VitestParser struct{}

type vitestOutput struct {
	NumTotalTests   int                 `json:"numTotalTests"`
	NumPassedTests  int                 `json:"numPassedTests"`
	NumFailedTests  int                 `json:"numFailedTests"`
	NumPendingTests int                 `json:"numPendingTests"`
	TestResults     []vitestSuiteResult `json:"testResults"`
}

type vitestSuiteResult struct {
	Name             string                  `json:"name"`
	Message          string                  `json:"message"`
	AssertionResults []vitestAssertionResult `json:"assertionResults"`
}

type vitestAssertionResult struct {
	FullName        string   `json:"fullName"`
	Status          string   `json:"status"`
	FailureMessages []string `json:"failureMessages"`
}

func (p *VitestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var raw vitestOutput
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		res := (&GenericParser{}).Parse(stdout, stderr, exitCode)
		res.Summary = fmt.Sprintf("exit code %d (could not parse test JSON)", exitCode)
		return res
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d skipped out of %d",
		raw.NumPassedTests, raw.NumFailedTests, raw.NumPendingTests, raw.NumTotalTests)
	if exitCode == 0 && raw.NumFailedTests == 0 {
		return ParseResult{Passed: true, Summary: summary}
	}

	var detail strings.Builder
	for _, suite := range raw.TestResults {
		if suite.Message != "" && len(suite.AssertionResults) == 0 {
			fmt.Fprintf(&detail, "%s\n%s\n\n", suite.Name, suite.Message)
		}
		for _, a := range suite.AssertionResults {
			if a.Status != "failed" {
				continue
			}
			msg := ""
			if len(a.FailureMessages) > 0 {
				msg = a.FailureMessages[0]
			}
			fmt.Fprintf(&detail, "FAIL %s > %s\n%s\n\n", suite.Name, a.FullName, msg)
		}
	}
	if detail.Len() == 0 {
		detail.WriteString(stderr)
	}
	return ParseResult{Summary: summary, Detail: tail(detail.String())}
}
