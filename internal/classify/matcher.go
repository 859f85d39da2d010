package classify

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"

	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/ignore"
)

// MatcherOptions configures BuildMatcher.
type MatcherOptions struct {
	Patterns      []string
	SkipGitignore bool
	Ignore        ignore.Options
}

// BuildMatcher compiles the project's ignore rules: the root .gitignore
// (unless skipped) followed by the configured patterns.
func BuildMatcher(files fsys.FS, opts MatcherOptions) (*ignore.Matcher, error) {
	var user []string
	if !opts.SkipGitignore {
		data, err := files.ReadFile(".gitignore")
		switch {
		case err == nil:
			rules, err := ignore.ReadPatterns(bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			user = append(user, rules...)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read .gitignore: %w", err)
		}
	}
	user = append(user, opts.Patterns...)
	m, err := ignore.Compile(user, opts.Ignore)
	if err != nil {
		return nil, fmt.Errorf("compile ignore rules: %w", err)
	}
	return m, nil
}
