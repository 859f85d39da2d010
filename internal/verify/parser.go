package verify

import (
	"sort"
	"strings"
)

// ParseResult holds the normalized output from a parser.
type ParseResult struct {
	Passed  bool   `json:"passed"`
	Summary string `json:"summary"`
	// Detail is the text handed back to the generator on failure.
	Detail string `json:"detail"`
}

// Parser converts raw command output into a ParseResult.
type Parser interface {
	Parse(stdout string, stderr string, exitCode int) ParseResult
}

var parsers = map[string]func() Parser{
	"generic": func() Parser { return &GenericParser{} },
	"pytest":  func() Parser { return &PytestParser{} },
	"gotest":  func() Parser { return &GoTestParser{} },
	"vitest":  func() Parser { return &VitestParser{} },
}

// LookupParser returns the parser registered under name.
func LookupParser(name string) (Parser, bool) {
	f, ok := parsers[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// ParserNames lists the registered parser names.
func ParserNames() []string {
	names := make([]string, 0, len(parsers))
	for n := range parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultParserFor guesses a parser from the test command.
func DefaultParserFor(command string) string {
	fields := strings.Fields(command)
	for i, f := range fields {
		switch {
		case f == "pytest" || strings.HasSuffix(f, "/pytest"):
			return "pytest"
		case f == "-m" && i+1 < len(fields) && fields[i+1] == "pytest":
			return "pytest"
		case f == "go" && i+1 < len(fields) && fields[i+1] == "test":
			return "gotest"
		case f == "vitest" && strings.Contains(command, "--reporter=json"):
			return "vitest"
		}
	}
	return "generic"
}
