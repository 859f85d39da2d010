package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/ignore"
)

func TestStore_SaveLoad(t *testing.T) {
	files := fsys.NewMem("/proj")
	s := NewStore(files)
	assert.False(t, s.Exists())

	require.NoError(t, s.Save(&Result{
		Included:     []string{"a.py", "src/b.py"},
		Excluded:     []string{".git", "dist"},
		AutoExcluded: []string{".git"},
	}))
	assert.True(t, s.Exists())

	raw, ok := files.Content(ProjectItemsFile)
	require.True(t, ok)
	assert.Equal(t, "a.py\nsrc/b.py\n", raw)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "src/b.py"}, got.Included)
	assert.Equal(t, []string{".git", "dist"}, got.Excluded)
	assert.Empty(t, got.AutoExcluded)
}

func TestStore_LoadMissingExcluded(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put(ProjectItemsFile, "b.py\n\na.py\n")
	got, err := NewStore(files).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, got.Included)
	assert.Empty(t, got.Excluded)
}

func TestStore_SaveError(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.WriteErrs[ExcludedItemsFile] = errors.New("disk full")
	s := NewStore(files)
	err := s.Save(&Result{Included: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, written := files.Content(ProjectItemsFile)
	assert.False(t, written, "included list must not be written when the excluded list fails")
	assert.False(t, s.Exists())
}

func TestStore_SaveIncludedError(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.WriteErrs[ProjectItemsFile] = errors.New("disk full")
	s := NewStore(files)
	require.Error(t, s.Save(&Result{Included: []string{"a"}, Excluded: []string{"b"}}))
	assert.False(t, s.Exists())
}

func TestStore_LoadKeepsSignificantSpaces(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put(ProjectItemsFile, " lead.py\r\ntrail.py \r\n\r\n")
	got, err := NewStore(files).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{" lead.py", "trail.py "}, got.Included)
}

func TestBuildMatcher(t *testing.T) {
	files := fsys.NewMem("/proj")
	files.Put(".gitignore", "# local\nsecrets.env\n")

	m, err := BuildMatcher(files, MatcherOptions{Patterns: []string{"*.bak"}})
	require.NoError(t, err)
	assert.True(t, m.Matches("secrets.env", false))
	assert.True(t, m.Matches("old/x.bak", false))
	assert.True(t, m.Matches("node_modules", true))
	assert.False(t, m.Matches("main.py", false))

	m, err = BuildMatcher(files, MatcherOptions{SkipGitignore: true})
	require.NoError(t, err)
	assert.False(t, m.Matches("secrets.env", false))

	_, err = BuildMatcher(fsys.NewMem("/proj"), MatcherOptions{
		Patterns: []string{"[unclosed"},
		Ignore:   ignore.Options{},
	})
	assert.Error(t, err)
}
