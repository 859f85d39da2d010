// Package classify decides which project entries are in scope for a run.
//
// A session lists the project root, drops whatever the ignore matcher hits,
// optionally asks the generation service to split the rest into project and
// excluded items, lets an Approver accept, revise or abort the proposal, and
// finally expands approved directories into files. A MANIFEST.in can stand in
// for the listing and categorizing steps.
package classify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/ignore"
	"github.com/lucasnoah/autocoder/internal/llm"
)

// ErrAborted is returned when the reviewer aborts the session.
var ErrAborted = errors.New("classification aborted by user")

// Depth selects how much of the tree ListRoot enumerates.
type Depth string

const (
	DepthTopLevel  Depth = "top-level"
	DepthRecursive Depth = "recursive"
)

// ParseDepth maps a config value to a Depth. Empty means top-level.
func ParseDepth(s string) (Depth, error) {
	switch Depth(s) {
	case "", DepthTopLevel:
		return DepthTopLevel, nil
	case DepthRecursive:
		return DepthRecursive, nil
	}
	return "", fmt.Errorf("unknown classification depth %q", s)
}

// Item is one listed entry.
type Item struct {
	Path  string
	IsDir bool
}

// String renders directories with a trailing slash.
func (i Item) String() string {
	if i.IsDir {
		return i.Path + "/"
	}
	return i.Path
}

// Result is the outcome of a session. Excluded is a superset of
// AutoExcluded; Included and Excluded never share a path.
type Result struct {
	Included     []string `json:"included"`
	Excluded     []string `json:"excluded"`
	AutoExcluded []string `json:"auto_excluded"`
}

// Options tunes a Classifier.
type Options struct {
	// MaxTokens caps categorize and revise replies. Defaults to 2048.
	MaxTokens int
	Logger    *zap.Logger
	// Manifest, when set, replaces listing and categorization with the
	// MANIFEST.in selection. Depth is ignored.
	Manifest *Manifest
}

// Classifier runs classification sessions against one project tree.
type Classifier struct {
	fs        fsys.FS
	matcher   *ignore.Matcher
	client    llm.Client
	approver  Approver
	maxTokens int
	log       *zap.Logger
	manifest  *Manifest
}

// New creates a Classifier. client may be nil, in which case every session
// uses the deterministic partition. approver may be nil to accept the first
// proposal.
func New(files fsys.FS, matcher *ignore.Matcher, client llm.Client, approver Approver, opts Options) *Classifier {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if approver == nil {
		approver = AutoAccept{}
	}
	return &Classifier{
		fs:        files,
		matcher:   matcher,
		client:    client,
		approver:  approver,
		maxTokens: opts.MaxTokens,
		log:       opts.Logger,
		manifest:  opts.Manifest,
	}
}

// Run performs a full session: Classify, Expand and, when store is not nil,
// Persist. Nothing is written unless every earlier step succeeded.
func (c *Classifier) Run(ctx context.Context, depth Depth, store *Store) (*Result, error) {
	approved, err := c.Classify(ctx, depth)
	if err != nil {
		return nil, err
	}
	res, err := c.Expand(ctx, approved)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.Save(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Classify lists the tree, filters it, categorizes the remaining entries and
// runs the approval loop. Directories in the returned Included set are not
// yet expanded.
func (c *Classifier) Classify(ctx context.Context, depth Depth) (*Result, error) {
	p, auto, err := c.propose(ctx, depth)
	if err != nil {
		return nil, err
	}
	p, err = c.approve(ctx, p, auto)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Included:     itemPaths(p.included),
		AutoExcluded: itemPaths(auto),
	}
	res.Excluded = sortedUnion(itemPaths(p.excluded), res.AutoExcluded)
	return res, nil
}

// propose builds the first proposal, from MANIFEST.in when configured and
// otherwise by listing and categorizing.
func (c *Classifier) propose(ctx context.Context, depth Depth) (partition, []Item, error) {
	if c.manifest != nil {
		p, auto, err := c.fromManifest(ctx)
		if err != nil {
			return partition{}, nil, err
		}
		c.log.Debug("applied manifest",
			zap.Int("rules", len(c.manifest.Rules)),
			zap.Int("selected", len(p.included)),
			zap.Int("auto_excluded", len(auto)))
		return p, auto, nil
	}

	candidates, auto, err := c.list(ctx, depth)
	if err != nil {
		return partition{}, nil, err
	}
	c.log.Debug("listed project root",
		zap.String("depth", string(depth)),
		zap.Int("candidates", len(candidates)),
		zap.Int("auto_excluded", len(auto)))
	return c.categorize(ctx, candidates), auto, nil
}

// list enumerates entries (ListRoot) and splits off matcher hits (AutoFilter).
// At recursive depth only files become candidates and ignored directories
// are not descended into.
func (c *Classifier) list(ctx context.Context, depth Depth) (candidates, auto []Item, err error) {
	if depth == DepthRecursive {
		err = c.fs.Walk(".", func(e fsys.Entry) error {
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
				candidates = append(candidates, Item{Path: e.Path})
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("walk project: %w", err)
		}
		return candidates, auto, nil
	}

	entries, err := c.fs.ListDir(".")
	if err != nil {
		return nil, nil, fmt.Errorf("list project root: %w", err)
	}
	for _, e := range entries {
		it := Item{Path: e.Path, IsDir: e.IsDir}
		if c.matcher.Matches(e.Path, e.IsDir) {
			auto = append(auto, it)
			continue
		}
		candidates = append(candidates, it)
	}
	return candidates, auto, nil
}

// partition is the working pair of lists during Categorize and Approve.
type partition struct {
	included []Item
	excluded []Item
}

func (c *Classifier) categorize(ctx context.Context, candidates []Item) partition {
	fallback := partition{included: candidates}
	if c.client == nil || len(candidates) == 0 {
		return fallback
	}
	p, err := c.askCategorize(ctx, candidates)
	if err != nil {
		c.log.Warn("categorization failed, including every candidate", zap.Error(err))
		return fallback
	}
	return p
}

func (c *Classifier) approve(ctx context.Context, p partition, auto []Item) (partition, error) {
	notice := ""
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return partition{}, err
		}
		dec, err := c.approver.Review(ctx, Proposal{
			Round:        round,
			Included:     p.included,
			Excluded:     p.excluded,
			AutoExcluded: auto,
			Notice:       notice,
		})
		if err != nil {
			return partition{}, fmt.Errorf("review proposal: %w", err)
		}

		switch dec.Action {
		case ActionAccept:
			return p, nil
		case ActionAbort:
			return partition{}, ErrAborted
		case ActionRequestChanges:
			revised, err := c.askRevise(ctx, p, auto, dec.Changes)
			if err != nil {
				c.log.Warn("revision failed", zap.Int("round", round), zap.Error(err))
				notice = ReviseFailedNotice
				continue
			}
			p, notice = revised, ""
		default:
			return partition{}, fmt.Errorf("unknown review action %d", dec.Action)
		}
	}
}

// Expand replaces every approved directory with the files below it,
// re-applying the matcher. Matched directories are not descended into; every
// pruned path is added to Excluded and AutoExcluded.
func (c *Classifier) Expand(ctx context.Context, approved *Result) (*Result, error) {
	excluded := toSet(approved.Excluded)
	auto := toSet(approved.AutoExcluded)
	included := make(map[string]bool)

	for _, p := range approved.Included {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := strings.TrimSuffix(p, "/")
		entry, err := c.fs.Stat(rel)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}
		if !entry.IsDir {
			included[entry.Path] = true
			continue
		}
		err = c.fs.Walk(entry.Path, func(e fsys.Entry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if c.matcher.Matches(e.Path, e.IsDir) {
				excluded[e.Path] = true
				auto[e.Path] = true
				if e.IsDir {
					return fs.SkipDir
				}
				return nil
			}
			if !e.IsDir {
				included[e.Path] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", entry.Path, err)
		}
	}

	for p := range excluded {
		delete(included, p)
	}
	return &Result{
		Included:     sortedKeys(included),
		Excluded:     sortedKeys(excluded),
		AutoExcluded: sortedKeys(auto),
	}, nil
}

func itemPaths(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Path)
	}
	sort.Strings(out)
	return out
}

func toSet(paths []string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedUnion(a, b []string) []string {
	m := toSet(a)
	for _, p := range b {
		m[p] = true
	}
	return sortedKeys(m)
}
