// Package modify requests changes from the generation service and writes
// them back to the project.
package modify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/autocoder/internal/fsys"
)

// ErrNoFileBlocks is matched by a ParseError for text without any marker line.
var ErrNoFileBlocks = errors.New("no file blocks found")

// ParseError reports generated text that does not follow the block grammar.
type ParseError struct {
	Line   int // 1-based; 0 when not tied to a line
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse modification: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse modification: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Block is one file's replacement content.
type Block struct {
	Path    string
	Content string
	Line    int
}

// markerRe matches "#File path:" on its own line.
var markerRe = regexp.MustCompile(`^#File\s+(\S.*?):\s*$`)

const fence = "```"

// Parse splits generated text into file blocks. A marker line opens a block
// and its body runs to the next marker or the end of the text. Text before
// the first marker is ignored. A body wrapped in a Markdown code fence is
// unwrapped, surrounding blank lines are dropped and non-empty bodies end
// with exactly one newline.
func Parse(text string) ([]Block, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var blocks []Block
	seen := make(map[string]int)
	var cur *Block
	var body []string

	flush := func() {
		if cur != nil {
			cur.Content = normalizeBody(body)
			blocks = append(blocks, *cur)
		}
	}

	for i, line := range lines {
		m := markerRe.FindStringSubmatch(line)
		if m == nil {
			if cur != nil {
				body = append(body, line)
			}
			continue
		}
		flush()

		raw := strings.Trim(strings.TrimSpace(m[1]), "`")
		p, err := fsys.Clean(raw)
		if err != nil || p == "." {
			return nil, &ParseError{Line: i + 1, Reason: fmt.Sprintf("invalid file path %q", raw), Err: err}
		}
		if prev, dup := seen[p]; dup {
			return nil, &ParseError{Line: i + 1, Reason: fmt.Sprintf("duplicate block for %s (first at line %d)", p, prev)}
		}
		seen[p] = i + 1
		cur = &Block{Path: p, Line: i + 1}
		body = nil
	}
	flush()

	if len(blocks) == 0 {
		return nil, &ParseError{Reason: ErrNoFileBlocks.Error(), Err: ErrNoFileBlocks}
	}
	return blocks, nil
}

func normalizeBody(lines []string) string {
	lines = trimBlank(lines)

	fences := 0
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), fence) {
			fences++
		}
	}
	if len(lines) >= 2 && isFence(lines[0]) && strings.TrimSpace(lines[len(lines)-1]) == fence {
		lines = trimBlank(lines[1 : len(lines)-1])
	} else if fences%2 == 1 && len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == fence {
		// closing fence of a response that wrapped all blocks in one fence
		lines = trimBlank(lines[:len(lines)-1])
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fence)
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
