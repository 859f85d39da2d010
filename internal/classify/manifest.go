package classify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lucasnoah/autocoder/internal/fsys"
)

// ManifestFile is the project file read when classify.source is manifest.
const ManifestFile = "MANIFEST.in"

// ErrNoManifest is returned by ReadManifest when the project has no MANIFEST.in.
var ErrNoManifest = errors.New(ManifestFile + " not found in project root")

// ManifestRule is one MANIFEST.in command line.
type ManifestRule struct {
	Line     int
	Command  string
	Dir      string
	Patterns []string
}

// Manifest is a parsed MANIFEST.in. Rules apply in file order, so a later
// exclude removes what an earlier include added and vice versa.
type Manifest struct {
	Rules []ManifestRule
}

// ReadManifest loads MANIFEST.in from the project root.
func ReadManifest(files fsys.FS) (*Manifest, error) {
	data, err := files.ReadFile(ManifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestFile, err)
	}
	return ParseManifest(bytes.NewReader(data))
}

// ParseManifest parses include, exclude, recursive-include,
// recursive-exclude, global-include, global-exclude, graft and prune lines.
// Blank lines and # comments are skipped.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		rule := ManifestRule{Line: n, Command: strings.ToLower(fields[0])}
		args := fields[1:]

		switch rule.Command {
		case "include", "exclude", "global-include", "global-exclude":
			if len(args) == 0 {
				return nil, manifestErr(n, "%s needs at least one pattern", rule.Command)
			}
			rule.Patterns = args
		case "recursive-include", "recursive-exclude":
			if len(args) < 2 {
				return nil, manifestErr(n, "%s needs a directory and at least one pattern", rule.Command)
			}
			rule.Dir, rule.Patterns = cleanDir(args[0]), args[1:]
		case "graft", "prune":
			if len(args) != 1 {
				return nil, manifestErr(n, "%s needs exactly one directory", rule.Command)
			}
			rule.Dir = cleanDir(args[0])
		default:
			return nil, manifestErr(n, "unknown command %q", fields[0])
		}
		for _, p := range rule.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, manifestErr(n, "invalid pattern %q", p)
			}
		}
		m.Rules = append(m.Rules, rule)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestFile, err)
	}
	return m, nil
}

func manifestErr(line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", ManifestFile, line, fmt.Sprintf(format, args...))
}

func cleanDir(dir string) string {
	return strings.Trim(path.Clean(dir), "/")
}

// Select applies the rules to files (slash-separated, relative to the
// project root) and returns the selected paths sorted.
func (m *Manifest) Select(files []string) []string {
	selected := make(map[string]bool)
	for _, r := range m.Rules {
		add := !strings.HasSuffix(r.Command, "exclude") && r.Command != "prune"
		for _, f := range files {
			if !r.matches(f) {
				continue
			}
			if add {
				selected[f] = true
			} else {
				delete(selected, f)
			}
		}
	}
	return sortedKeys(selected)
}

func (r ManifestRule) matches(file string) bool {
	switch r.Command {
	case "include", "exclude":
		return matchAny(r.Patterns, file)
	case "global-include", "global-exclude":
		return matchAny(r.Patterns, path.Base(file))
	case "recursive-include", "recursive-exclude":
		return underDir(file, r.Dir) && matchAny(r.Patterns, path.Base(file))
	case "graft", "prune":
		return underDir(file, r.Dir)
	}
	return false
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func underDir(file, dir string) bool {
	return dir == "." || strings.HasPrefix(file, dir+"/")
}

// fromManifest builds the proposal from the manifest instead of a listing:
// every file the matcher keeps is walked, manifest-selected files are
// proposed as project items and the rest as excluded items.
func (c *Classifier) fromManifest(ctx context.Context) (partition, []Item, error) {
	var (
		all  []string
		auto []Item
	)
	err := c.fs.Walk(".", func(e fsys.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.matcher.Matches(e.Path, e.IsDir) {
			auto = append(auto, Item{Path: e.Path, IsDir: e.IsDir})
			if e.IsDir {
				return fs.SkipDir
			}
			return nil
		}
		if !e.IsDir {
			all = append(all, e.Path)
		}
		return nil
	})
	if err != nil {
		return partition{}, nil, fmt.Errorf("walk project: %w", err)
	}

	selected := toSet(c.manifest.Select(all))
	var p partition
	for _, f := range all {
		if selected[f] {
			p.included = append(p.included, Item{Path: f})
		} else {
			p.excluded = append(p.excluded, Item{Path: f})
		}
	}
	return p, auto, nil
}
