package classify

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/lucasnoah/autocoder/internal/fsys"
)

// Persisted list locations, relative to the project root.
const (
	ProjectItemsFile  = ".autocoder/project_items"
	ExcludedItemsFile = ".autocoder/excluded_items"
)

// Store persists the final lists for reuse by later runs.
type Store struct {
	fs fsys.FS
}

// NewStore returns a Store writing under the root of fs.
func NewStore(files fsys.FS) *Store {
	return &Store{fs: files}
}

// Save writes both lists, one path per line, newline-terminated. The
// included list is written last since Exists keys off it.
func (s *Store) Save(res *Result) error {
	if err := s.fs.WriteFile(ExcludedItemsFile, encodeLines(res.Excluded)); err != nil {
		return fmt.Errorf("write %s: %w", ExcludedItemsFile, err)
	}
	if err := s.fs.WriteFile(ProjectItemsFile, encodeLines(res.Included)); err != nil {
		return fmt.Errorf("write %s: %w", ProjectItemsFile, err)
	}
	return nil
}

// Exists reports whether a previous session left an included list behind.
func (s *Store) Exists() bool {
	_, err := s.fs.Stat(ProjectItemsFile)
	return err == nil
}

// Load reads the persisted lists. A missing excluded list is treated as
// empty. AutoExcluded is not persisted and comes back empty.
func (s *Store) Load() (*Result, error) {
	inc, err := s.fs.ReadFile(ProjectItemsFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ProjectItemsFile, err)
	}
	exc, err := s.fs.ReadFile(ExcludedItemsFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", ExcludedItemsFile, err)
	}
	return &Result{
		Included: decodeLines(inc),
		Excluded: decodeLines(exc),
	}, nil
}

func encodeLines(paths []string) []byte {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func decodeLines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
}
