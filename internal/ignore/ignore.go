// Package ignore decides whether a project path should be left out of the
// working set, using .gitignore-style rules.
package ignore

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy controls how user rules and the built-in defaults are ordered.
// Later rules override earlier ones, so the rule set placed last wins a conflict.
type Policy int

const (
	// PolicyDefaultsWin appends the defaults after user rules. A user
	// negation cannot re-include something a default excludes.
	PolicyDefaultsWin Policy = iota
	// PolicyUserWins places user rules after the defaults, so "!build/"
	// re-includes a directory the defaults would skip.
	PolicyUserWins
)

func (p Policy) String() string {
	if p == PolicyUserWins {
		return "user-wins"
	}
	return "defaults-win"
}

// Defaults is the built-in rule set: VCS metadata, editor state, caches,
// dependency and build output directories, logs and the tool's own directory.
var Defaults = []string{
	".git/",
	".hg/",
	".svn/",
	".idea/",
	".vscode/",
	"*.egg-info/",
	"__pycache__/",
	".pytest_cache/",
	".tox/",
	".venv/",
	"venv/",
	"env/",
	"build/",
	"dist/",
	"node_modules/",
	".DS_Store",
	"Thumbs.db",
	"*.pyc",
	"*.pyo",
	"*.pyd",
	"*.swp",
	"*.log",
	"*.tmp",
	"*.sqlite3",
	"*.db",
	".autocoder/",
}

// Options configures Compile.
type Options struct {
	Policy Policy
	// NoDefaults drops the built-in rules entirely.
	NoDefaults bool
}

type rule struct {
	raw      string
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher evaluates a compiled rule list. It is immutable and safe for
// concurrent use.
type Matcher struct {
	rules []rule
}

// Compile builds a Matcher from user rules (typically .gitignore lines)
// combined with Defaults according to opts.
func Compile(user []string, opts Options) (*Matcher, error) {
	var lines []string
	switch {
	case opts.NoDefaults:
		lines = user
	case opts.Policy == PolicyUserWins:
		lines = append(append([]string{}, Defaults...), user...)
	default:
		lines = append(append([]string{}, user...), Defaults...)
	}

	m := &Matcher{}
	for i, line := range lines {
		r, ok, err := parseRule(line)
		if err != nil {
			return nil, fmt.Errorf("ignore rule %d %q: %w", i+1, line, err)
		}
		if ok {
			m.rules = append(m.rules, r)
		}
	}
	return m, nil
}

// MustCompile is Compile for rule sets known to be valid.
func MustCompile(user []string, opts Options) *Matcher {
	m, err := Compile(user, opts)
	if err != nil {
		panic(err)
	}
	return m
}

func parseRule(line string) (rule, bool, error) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false, nil
	}
	r := rule{raw: line}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if line == "" {
		return rule{}, false, nil
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if r.anchored {
		r.pattern = line
	} else {
		r.pattern = "**/" + line
	}
	if !doublestar.ValidatePattern(r.pattern) {
		return rule{}, false, fmt.Errorf("invalid glob")
	}
	return r, true, nil
}

// Matches reports whether rel (slash-separated, relative to the project
// root) is ignored. A path inside an ignored directory is ignored too.
func (m *Matcher) Matches(rel string, isDir bool) bool {
	rel = strings.Trim(strings.ReplaceAll(rel, "\\", "/"), "/")
	if rel == "" || rel == "." {
		return false
	}
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.matchOne(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return m.matchOne(rel, isDir)
}

func (m *Matcher) matchOne(p string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		ok, err := doublestar.Match(r.pattern, p)
		if err != nil || !ok {
			continue
		}
		ignored = !r.negate
	}
	return ignored
}

// Rules returns the effective rule lines in evaluation order.
func (m *Matcher) Rules() []string {
	out := make([]string, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.raw
	}
	return out
}

// ReadPatterns reads rule lines from r, e.g. a .gitignore body. Comments and
// blank lines are kept out.
func ReadPatterns(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore patterns: %w", err)
	}
	return out, nil
}
