package modify

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lucasnoah/autocoder/internal/fsys"
)

// ApplyResult describes what Apply wrote.
type ApplyResult struct {
	// Files is the updated path -> content map.
	Files map[string]string
	// Changed lists paths written, in block order.
	Changed []string
	// Skipped lists block paths outside the allowed set.
	Skipped []string
}

// Applier writes parsed file blocks through the filesystem collaborator.
type Applier struct {
	fs  fsys.FS
	log *zap.Logger
}

// NewApplier creates an Applier.
func NewApplier(fs fsys.FS, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{fs: fs, log: log}
}

// Apply parses text and writes every applicable block. When targets is
// non-empty, only blocks for a target or for a file already in files are
// applicable; other blocks are skipped. Files without a block keep their
// content. Text with no applicable block is a *ParseError. The input map
// is not modified.
func (a *Applier) Apply(text string, targets []string, files map[string]string) (*ApplyResult, error) {
	blocks, err := Parse(text)
	if err != nil {
		return nil, err
	}

	allowed := func(string) bool { return true }
	if len(targets) > 0 {
		set := make(map[string]bool, len(targets)+len(files))
		for _, t := range targets {
			if p, err := fsys.Clean(t); err == nil {
				set[p] = true
			}
		}
		for p := range files {
			set[p] = true
		}
		allowed = func(p string) bool { return set[p] }
	}

	res := &ApplyResult{Files: make(map[string]string, len(files)+len(blocks))}
	for p, c := range files {
		res.Files[p] = c
	}

	var applicable []Block
	for _, b := range blocks {
		if !allowed(b.Path) {
			a.log.Warn("skipping block outside target set", zap.String("path", b.Path), zap.Int("line", b.Line))
			res.Skipped = append(res.Skipped, b.Path)
			continue
		}
		applicable = append(applicable, b)
	}
	if len(applicable) == 0 {
		sort.Strings(res.Skipped)
		return nil, &ParseError{Reason: fmt.Sprintf("no applicable file blocks (skipped: %v)", res.Skipped)}
	}

	for _, b := range applicable {
		if err := a.fs.WriteFile(b.Path, []byte(b.Content)); err != nil {
			return res, fmt.Errorf("write %s: %w", b.Path, err)
		}
		res.Files[b.Path] = b.Content
		res.Changed = append(res.Changed, b.Path)
		a.log.Debug("applied block", zap.String("path", b.Path), zap.Int("bytes", len(b.Content)))
	}
	return res, nil
}

// ChangedContent returns the current content of the given paths from files.
func ChangedContent(files map[string]string, paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		if c, ok := files[p]; ok {
			out[p] = c
		}
	}
	return out
}
