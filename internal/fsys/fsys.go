// Package fsys is the filesystem collaborator used by every component that
// touches the project tree. All paths crossing the interface are relative to
// the project root and use forward slashes.
package fsys

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideRoot is returned for paths that are absolute or climb above the root.
var ErrOutsideRoot = errors.New("path escapes project root")

// Entry describes one file or directory under the root.
type Entry struct {
	Path  string // relative, slash-separated
	Name  string
	IsDir bool
}

// FS is the filesystem surface the pipeline depends on.
type FS interface {
	Root() string
	ReadFile(rel string) ([]byte, error)
	WriteFile(rel string, data []byte) error
	Stat(rel string) (Entry, error)
	// ListDir returns the immediate children of rel, sorted by name.
	ListDir(rel string) ([]Entry, error)
	// Walk visits every entry below rel in lexical order. Returning
	// fs.SkipDir from fn for a directory skips its contents.
	Walk(rel string, fn func(Entry) error) error
}

// OS implements FS on the real filesystem.
type OS struct {
	root string
}

// NewOS returns an FS rooted at root. The root is made absolute.
func NewOS(root string) (*OS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}
	return &OS{root: abs}, nil
}

// Root returns the absolute project root.
func (o *OS) Root() string {
	return o.root
}

// Clean normalizes a relative path and rejects anything that would leave the root.
// The root itself is returned as ".".
func Clean(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, "\\", "/")
	if rel == "" || rel == "." {
		return ".", nil
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideRoot)
	}
	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideRoot)
	}
	return cleaned, nil
}

func (o *OS) abs(rel string) (string, error) {
	cleaned, err := Clean(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(o.root, filepath.FromSlash(cleaned)), nil
}

func (o *OS) ReadFile(rel string) ([]byte, error) {
	p, err := o.abs(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// WriteFile replaces the file atomically, creating parent directories.
func (o *OS) WriteFile(rel string, data []byte) error {
	p, err := o.abs(rel)
	if err != nil {
		return err
	}
	return WriteAtomic(p, data)
}

func (o *OS) Stat(rel string) (Entry, error) {
	p, err := o.abs(rel)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return Entry{}, err
	}
	cleaned, _ := Clean(rel)
	return Entry{Path: cleaned, Name: info.Name(), IsDir: info.IsDir()}, nil
}

func (o *OS) ListDir(rel string) ([]Entry, error) {
	p, err := o.abs(rel)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	cleaned, _ := Clean(rel)
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		entries = append(entries, Entry{
			Path:  join(cleaned, d.Name()),
			Name:  d.Name(),
			IsDir: d.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (o *OS) Walk(rel string, fn func(Entry) error) error {
	start, err := o.abs(rel)
	if err != nil {
		return err
	}
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == start {
			return nil
		}
		r, err := filepath.Rel(o.root, p)
		if err != nil {
			return err
		}
		return fn(Entry{Path: filepath.ToSlash(r), Name: d.Name(), IsDir: d.IsDir()})
	})
}

func join(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return dir + "/" + name
}
