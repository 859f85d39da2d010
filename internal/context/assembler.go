// Package context assembles the textual project snapshot handed to the
// generation service.
package context

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lucasnoah/autocoder/internal/fsys"
)

const (
	manifestHeader = "Project Files:\n"
	contentsHeader = "\nFile Contents:\n"
	markerPrefix   = "\n#File "
	markerSuffix   = ":\n"
)

// Snapshot is one assembled context.
type Snapshot struct {
	Text  string
	Paths []string
	// Files holds the content of every path that could be read.
	Files map[string]string
	// Unreadable maps paths that failed to load to their error.
	Unreadable map[string]error
	// Truncated lists paths whose body in Text was shortened.
	Truncated []string
}

// Assembler reads files through an fsys.FS and formats them.
type Assembler struct {
	fs fsys.FS
}

// NewAssembler creates an Assembler.
func NewAssembler(fs fsys.FS) *Assembler {
	return &Assembler{fs: fs}
}

// Build reads every path and renders the snapshot. Paths are sorted and
// deduplicated. A file that cannot be read gets an inline error marker
// instead of its content; assembly always completes.
func (a *Assembler) Build(paths []string) *Snapshot {
	s := &Snapshot{
		Paths:      normalize(paths),
		Files:      make(map[string]string),
		Unreadable: make(map[string]error),
	}
	for _, p := range s.Paths {
		data, err := a.fs.ReadFile(p)
		if err != nil {
			s.Unreadable[p] = err
			continue
		}
		s.Files[p] = string(data)
	}
	s.Text = format(s.Paths, s.bodies(0))
	return s
}

// Truncate returns a copy whose rendered text limits each file body to
// maxBytes. Shortened bodies end with an inline note and are listed in
// Truncated. Files is left intact. maxBytes <= 0 returns s unchanged.
func (s *Snapshot) Truncate(maxBytes int) *Snapshot {
	if maxBytes <= 0 {
		return s
	}
	out := *s
	out.Truncated = nil
	for _, p := range s.Paths {
		if c, ok := s.Files[p]; ok && len(c) > maxBytes {
			out.Truncated = append(out.Truncated, p)
		}
	}
	out.Text = format(s.Paths, s.bodies(maxBytes))
	return &out
}

func (s *Snapshot) bodies(maxBytes int) map[string]string {
	bodies := make(map[string]string, len(s.Paths))
	for _, p := range s.Paths {
		if err, ok := s.Unreadable[p]; ok {
			bodies[p] = fmt.Sprintf("[error reading %s: %v]", p, err)
			continue
		}
		c := s.Files[p]
		if maxBytes > 0 && len(c) > maxBytes {
			c = fmt.Sprintf("%s\n[truncated: showing %d of %d bytes]", c[:maxBytes], maxBytes, len(c))
		}
		bodies[p] = c
	}
	return bodies
}

// Format renders files as a context without touching the filesystem.
func Format(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	return format(normalize(paths), files)
}

func format(paths []string, bodies map[string]string) string {
	var b strings.Builder
	b.WriteString(manifestHeader)
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	b.WriteString(contentsHeader)
	for _, p := range paths {
		b.WriteString(markerPrefix)
		b.WriteString(p)
		b.WriteString(markerSuffix)
		b.WriteString(bodies[p])
		b.WriteByte('\n')
	}
	return b.String()
}

// Split parses a rendered context back into path -> body using its
// manifest. A body that itself contains the marker line of the following
// file cannot be recovered exactly.
func Split(text string) (map[string]string, error) {
	if !strings.HasPrefix(text, manifestHeader) {
		return nil, fmt.Errorf("context: missing %q header", strings.TrimSpace(manifestHeader))
	}
	rest := text[len(manifestHeader):]
	idx := strings.Index(rest, contentsHeader)
	if idx < 0 {
		return nil, fmt.Errorf("context: missing %q header", strings.TrimSpace(contentsHeader))
	}
	var paths []string
	if manifest := rest[:idx]; manifest != "" {
		paths = strings.Split(strings.TrimSuffix(manifest, "\n"), "\n")
	}
	body := rest[idx+len(contentsHeader):]

	out := make(map[string]string, len(paths))
	for i, p := range paths {
		marker := markerPrefix + p + markerSuffix
		if !strings.HasPrefix(body, marker) {
			return nil, fmt.Errorf("context: expected section for %s", p)
		}
		body = body[len(marker):]

		end := len(body) - 1
		if i+1 < len(paths) {
			next := "\n" + markerPrefix + paths[i+1] + markerSuffix
			end = strings.Index(body, next)
			if end < 0 {
				return nil, fmt.Errorf("context: section for %s not terminated", p)
			}
		} else if end < 0 || body[end] != '\n' {
			return nil, fmt.Errorf("context: section for %s not terminated", p)
		}
		out[p] = body[:end]
		body = body[end+1:]
	}
	return out, nil
}

func normalize(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
