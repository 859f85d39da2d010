package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/ignore"
)

// mockLLM returns scripted replies in call order and records prompts.
type mockLLM struct {
	replies []string
	errs    []error
	prompts []string
}

func (m *mockLLM) Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "", errors.New("unexpected call")
}

// scripted answers proposals with the given decisions and records them.
type scripted struct {
	decisions []Decision
	seen      []Proposal
}

func (s *scripted) Review(ctx context.Context, p Proposal) (Decision, error) {
	s.seen = append(s.seen, p)
	if len(s.seen) > len(s.decisions) {
		return Decision{}, errors.New("no more decisions")
	}
	return s.decisions[len(s.seen)-1], nil
}

func defaultMatcher(t *testing.T) *ignore.Matcher {
	t.Helper()
	m, err := ignore.Compile(nil, ignore.Options{})
	require.NoError(t, err)
	return m
}

func pyProjectWithCaches() *fsys.Mem {
	m := fsys.NewMem("/proj")
	m.Put("a.py", "print('a')\n")
	m.Put("b.pyc", "\x00")
	m.Put(".git/config", "[core]\n")
	return m
}

func TestRun_DeterministicPartition(t *testing.T) {
	files := pyProjectWithCaches()
	c := New(files, defaultMatcher(t), nil, nil, Options{})

	res, err := c.Run(context.Background(), DepthTopLevel, nil)
	require.NoError(t, err)

	want := &Result{
		Included:     []string{"a.py"},
		Excluded:     []string{".git", "b.pyc"},
		AutoExcluded: []string{".git", "b.pyc"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Idempotent(t *testing.T) {
	files := pyProjectWithCaches()
	files.Put("src/main.py", "")
	files.Put("src/__pycache__/main.cpython-312.pyc", "")
	c := New(files, defaultMatcher(t), nil, nil, Options{})

	first, err := c.Run(context.Background(), DepthTopLevel, nil)
	require.NoError(t, err)
	second, err := c.Run(context.Background(), DepthTopLevel, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRun_CategorizeServiceFailureFallsBack(t *testing.T) {
	files := pyProjectWithCaches()
	client := &mockLLM{errs: []error{errors.New("service unavailable")}}
	c := New(files, defaultMatcher(t), client, nil, Options{})

	res, err := c.Run(context.Background(), DepthTopLevel, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, res.Included)
	assert.Len(t, client.prompts, 1)
}

func TestRun_CategorizeUnparsableFallsBack(t *testing.T) {
	files := pyProjectWithCaches()
	files.Put("notes.txt", "")
	client := &mockLLM{replies: []string{"I think everything looks fine."}}
	c := New(files, defaultMatcher(t), client, nil, Options{})

	res, err := c.Run(context.Background(), DepthTopLevel, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "notes.txt"}, res.Included)
}

func TestClassify_WithCategorizer(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put("README.md", "")
	files.Put("main.py", "")
	files.Put("scratch.txt", "")
	files.Put("src/app.py", "")
	client := &mockLLM{replies: []string{`Here is the split.

**Project Items:**
- src/ (directory)
- main.py (file)
- invented.go

**Excluded Items:**
- scratch.txt (file)
- main.py
`}}
	c := New(files, defaultMatcher(t), client, nil, Options{})

	res, err := c.Classify(context.Background(), DepthTopLevel)
	require.NoError(t, err)

	// main.py is in both lists, README.md in neither, invented.go unknown.
	assert.Equal(t, []string{"README.md", "src"}, res.Included)
	assert.Equal(t, []string{"main.py", "scratch.txt"}, res.Excluded)
	assert.Empty(t, res.AutoExcluded)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "- src (directory)")
	assert.Contains(t, client.prompts[0], "- README.md (file)")
}

func TestClassify_ReviseLoop(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put("app.py", "")
	files.Put("docs/index.md", "")
	files.Put("debug.log", "")
	client := &mockLLM{replies: []string{
		"Project Items:\n- app.py\n- docs\n\nExcluded Items:\n",
		"Project Items:\n- app.py\n\nExcluded Items:\n- docs\n",
	}}
	approver := &scripted{decisions: []Decision{
		{Action: ActionRequestChanges, Changes: "exclude the docs directory"},
		{Action: ActionAccept},
	}}
	c := New(files, defaultMatcher(t), client, approver, Options{})

	res, err := c.Classify(context.Background(), DepthTopLevel)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, res.Included)
	assert.Equal(t, []string{"debug.log", "docs"}, res.Excluded)

	require.Len(t, approver.seen, 2)
	assert.Equal(t, 1, approver.seen[0].Round)
	assert.Equal(t, 2, approver.seen[1].Round)
	assert.Equal(t, []Item{{Path: "debug.log"}}, approver.seen[0].AutoExcluded)
	assert.Empty(t, approver.seen[1].Notice)

	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "exclude the docs directory")
	assert.Contains(t, client.prompts[1], "- docs/")
	assert.Contains(t, client.prompts[1], "Automatically Excluded Items")
}

func TestClassify_ReviseFailureKeepsLists(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put("app.py", "")
	files.Put("lib.py", "")
	client := &mockLLM{
		replies: []string{"Project Items:\n- app.py\n- lib.py\nExcluded Items:\n"},
		errs:    []error{nil, errors.New("timeout")},
	}
	approver := &scripted{decisions: []Decision{
		{Action: ActionRequestChanges, Changes: "drop lib.py"},
		{Action: ActionAccept},
	}}
	c := New(files, defaultMatcher(t), client, approver, Options{})

	res, err := c.Classify(context.Background(), DepthTopLevel)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "lib.py"}, res.Included)

	require.Len(t, approver.seen, 2)
	assert.Equal(t, ReviseFailedNotice, approver.seen[1].Notice)
	assert.Equal(t, approver.seen[0].Included, approver.seen[1].Included)
}

func TestClassify_ReviseWithoutServiceNotices(t *testing.T) {
	files := pyProjectWithCaches()
	approver := &scripted{decisions: []Decision{
		{Action: ActionRequestChanges, Changes: "anything"},
		{Action: ActionAccept},
	}}
	c := New(files, defaultMatcher(t), nil, approver, Options{})

	_, err := c.Classify(context.Background(), DepthTopLevel)
	require.NoError(t, err)
	assert.Equal(t, ReviseFailedNotice, approver.seen[1].Notice)
}

func TestRun_AbortPersistsNothing(t *testing.T) {
	files := pyProjectWithCaches()
	approver := &scripted{decisions: []Decision{{Action: ActionAbort}}}
	c := New(files, defaultMatcher(t), nil, approver, Options{})
	store := NewStore(files)

	res, err := c.Run(context.Background(), DepthTopLevel, store)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Nil(t, res)
	assert.False(t, store.Exists())
}

func TestRun_WalkErrorIsFatal(t *testing.T) {
	files := pyProjectWithCaches()
	files.Put("src/a.py", "")
	files.ListErrs["src"] = errors.New("permission denied")
	c := New(files, defaultMatcher(t), nil, nil, Options{})
	store := NewStore(files)

	_, err := c.Run(context.Background(), DepthTopLevel, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, store.Exists())
}

func TestRun_RecursiveDepth(t *testing.T) {
	files := pyProjectWithCaches()
	files.Put("pkg/mod.py", "")
	files.Put("pkg/build/out.py", "")
	files.Put("node_modules/x/index.js", "")
	c := New(files, defaultMatcher(t), nil, nil, Options{})

	res, err := c.Run(context.Background(), DepthRecursive, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "pkg/mod.py"}, res.Included)
	assert.Equal(t, []string{".git", "b.pyc", "node_modules", "pkg/build"}, res.AutoExcluded)
}

func TestExpand_PrunesMatchedSubtrees(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put("src/a.py", "")
	files.Put("src/lib/b.py", "")
	files.Put("src/__pycache__/a.cpython-312.pyc", "")
	files.Put("src/debug.log", "")
	files.Put("setup.py", "")
	c := New(files, defaultMatcher(t), nil, nil, Options{})

	res, err := c.Expand(context.Background(), &Result{
		Included: []string{"setup.py", "src"},
		Excluded: []string{"scratch"},
	})
	require.NoError(t, err)

	want := &Result{
		Included:     []string{"setup.py", "src/a.py", "src/lib/b.py"},
		Excluded:     []string{"scratch", "src/__pycache__", "src/debug.log"},
		AutoExcluded: []string{"src/__pycache__", "src/debug.log"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("expand mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_IncludedAndExcludedDisjoint(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put("a.py", "")
	files.Put("lib/x.py", "")
	files.Put("lib/x.log", "")
	files.Put("lib/.venv/bin/python", "")
	files.Put("vendor/y.py", "")
	client := &mockLLM{replies: []string{
		"Project Items:\n- a.py\n- lib\n- vendor\nExcluded Items:\n- vendor\n",
	}}
	c := New(files, defaultMatcher(t), client, nil, Options{})

	res, err := c.Run(context.Background(), DepthTopLevel, nil)
	require.NoError(t, err)
	excluded := toSet(res.Excluded)
	for _, p := range res.Included {
		if excluded[p] {
			t.Errorf("%s is both included and excluded", p)
		}
	}
	for _, p := range res.AutoExcluded {
		assert.True(t, excluded[p], "auto-excluded %s missing from excluded", p)
	}
}

func TestClassify_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(pyProjectWithCaches(), defaultMatcher(t), nil, nil, Options{})
	_, err := c.Classify(ctx, DepthTopLevel)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDepth(t *testing.T) {
	d, err := ParseDepth("")
	require.NoError(t, err)
	assert.Equal(t, DepthTopLevel, d)
	d, err = ParseDepth("recursive")
	require.NoError(t, err)
	assert.Equal(t, DepthRecursive, d)
	_, err = ParseDepth("deep")
	assert.Error(t, err)
}
