package fsys

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Mem is an in-memory FS. Directories exist implicitly as prefixes of file
// paths or explicitly via Mkdir. Failures can be injected per path.
type Mem struct {
	root      string
	files     map[string][]byte
	dirs      map[string]bool
	ReadErrs  map[string]error
	WriteErrs map[string]error
	ListErrs  map[string]error
}

// NewMem returns an empty in-memory FS that reports root as its root.
func NewMem(root string) *Mem {
	return &Mem{
		root:      root,
		files:     make(map[string][]byte),
		dirs:      make(map[string]bool),
		ReadErrs:  make(map[string]error),
		WriteErrs: make(map[string]error),
		ListErrs:  make(map[string]error),
	}
}

func (m *Mem) Root() string {
	return m.root
}

// Put stores a file without going through the write error hooks.
func (m *Mem) Put(rel, content string) {
	cleaned, err := Clean(rel)
	if err != nil {
		panic(err)
	}
	m.files[cleaned] = []byte(content)
}

// Mkdir records an empty directory.
func (m *Mem) Mkdir(rel string) {
	cleaned, err := Clean(rel)
	if err != nil {
		panic(err)
	}
	m.dirs[cleaned] = true
}

// Content returns a file's content and whether it exists.
func (m *Mem) Content(rel string) (string, bool) {
	data, ok := m.files[rel]
	return string(data), ok
}

func (m *Mem) ReadFile(rel string) ([]byte, error) {
	cleaned, err := Clean(rel)
	if err != nil {
		return nil, err
	}
	if err := m.ReadErrs[cleaned]; err != nil {
		return nil, err
	}
	data, ok := m.files[cleaned]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: cleaned, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *Mem) WriteFile(rel string, data []byte) error {
	cleaned, err := Clean(rel)
	if err != nil {
		return err
	}
	if err := m.WriteErrs[cleaned]; err != nil {
		return err
	}
	if m.isDir(cleaned) {
		return fmt.Errorf("write %s: is a directory", cleaned)
	}
	m.files[cleaned] = append([]byte(nil), data...)
	return nil
}

func (m *Mem) Stat(rel string) (Entry, error) {
	cleaned, err := Clean(rel)
	if err != nil {
		return Entry{}, err
	}
	if _, ok := m.files[cleaned]; ok {
		return Entry{Path: cleaned, Name: base(cleaned), IsDir: false}, nil
	}
	if m.isDir(cleaned) {
		return Entry{Path: cleaned, Name: base(cleaned), IsDir: true}, nil
	}
	return Entry{}, &fs.PathError{Op: "stat", Path: cleaned, Err: fs.ErrNotExist}
}

func (m *Mem) ListDir(rel string) ([]Entry, error) {
	cleaned, err := Clean(rel)
	if err != nil {
		return nil, err
	}
	if err := m.ListErrs[cleaned]; err != nil {
		return nil, err
	}
	if !m.isDir(cleaned) {
		return nil, &fs.PathError{Op: "readdir", Path: cleaned, Err: fs.ErrNotExist}
	}
	prefix := ""
	if cleaned != "." {
		prefix = cleaned + "/"
	}
	seen := make(map[string]Entry)
	add := func(p string, leafIsDir bool) {
		if !strings.HasPrefix(p, prefix) {
			return
		}
		rest := p[len(prefix):]
		if rest == "" {
			return
		}
		name, _, nested := strings.Cut(rest, "/")
		seen[name] = Entry{Path: join(cleaned, name), Name: name, IsDir: nested || leafIsDir}
	}
	for p := range m.files {
		add(p, false)
	}
	for d := range m.dirs {
		add(d, true)
	}
	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *Mem) Walk(rel string, fn func(Entry) error) error {
	entries, err := m.ListDir(rel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		err := fn(e)
		if e.IsDir {
			if err == fs.SkipDir {
				continue
			}
			if err != nil {
				return err
			}
			if err := m.Walk(e.Path, fn); err != nil {
				return err
			}
			continue
		}
		if err == fs.SkipDir {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Mem) isDir(cleaned string) bool {
	if cleaned == "." || m.dirs[cleaned] {
		return true
	}
	prefix := cleaned + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for d := range m.dirs {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

func base(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
