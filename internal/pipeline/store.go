package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lucasnoah/autocoder/internal/fsys"
)

// RunsDir is where run artifacts live, relative to the project root.
const RunsDir = ".autocoder/runs"

// Store manages run artifacts on disk.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// ProjectStore returns the Store under <projectRoot>/.autocoder/runs.
func ProjectStore(projectRoot string) *Store {
	return NewStore(filepath.Join(projectRoot, filepath.FromSlash(RunsDir)))
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) statePath(runID string) string {
	return filepath.Join(s.runDir(runID), "state.json")
}

func (s *Store) attemptDir(runID string, attempt int) string {
	return filepath.Join(s.runDir(runID), fmt.Sprintf("attempt-%d", attempt))
}

// SaveState writes the state snapshot, stamping UpdatedAt.
func (s *Store) SaveState(st *State) error {
	if st.RunID == "" {
		return errors.New("state has no run id")
	}
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return fsys.WriteJSON(s.statePath(st.RunID), st)
}

// GetState reads a state snapshot.
func (s *Store) GetState(runID string) (*State, error) {
	var st State
	if err := fsys.ReadJSON(s.statePath(runID), &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	return &st, nil
}

// List returns every run snapshot, oldest first. Broken entries are skipped.
func (s *Store) List() ([]State, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}
	var runs []State
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := s.GetState(e.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *st)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt != runs[j].StartedAt {
			return runs[i].StartedAt < runs[j].StartedAt
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs, nil
}

// Delete removes all artifacts of a run.
func (s *Store) Delete(runID string) error {
	dir := s.runDir(runID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("run %s not found", runID)
	}
	return os.RemoveAll(dir)
}

// SavePrompt writes the prompt sent on attempt n, counted from 1.
func (s *Store) SavePrompt(runID string, attempt int, prompt string) error {
	return fsys.WriteAtomic(filepath.Join(s.attemptDir(runID, attempt), "prompt.md"), []byte(prompt))
}

// SaveResponse writes the raw generation reply of an attempt.
func (s *Store) SaveResponse(runID string, attempt int, text string) error {
	return fsys.WriteAtomic(filepath.Join(s.attemptDir(runID, attempt), "response.md"), []byte(text))
}

// SaveVerification writes the verification outcome of an attempt.
func (s *Store) SaveVerification(runID string, attempt int, v *Verification) error {
	return fsys.WriteJSON(filepath.Join(s.attemptDir(runID, attempt), "verify.json"), v)
}

// GetPrompt reads the prompt of an attempt.
func (s *Store) GetPrompt(runID string, attempt int) (string, error) {
	return readString(filepath.Join(s.attemptDir(runID, attempt), "prompt.md"))
}

// GetResponse reads the generation reply of an attempt.
func (s *Store) GetResponse(runID string, attempt int) (string, error) {
	return readString(filepath.Join(s.attemptDir(runID, attempt), "response.md"))
}

// GetVerification reads the verification outcome of an attempt.
func (s *Store) GetVerification(runID string, attempt int) (*Verification, error) {
	var v Verification
	if err := fsys.ReadJSON(filepath.Join(s.attemptDir(runID, attempt), "verify.json"), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Attempts returns the attempt numbers recorded for a run, ascending.
func (s *Store) Attempts(runID string) ([]int, error) {
	entries, err := os.ReadDir(s.runDir(runID))
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range entries {
		var n int
		if e.IsDir() {
			if _, err := fmt.Sscanf(e.Name(), "attempt-%d", &n); err == nil {
				out = append(out, n)
			}
		}
	}
	sort.Ints(out)
	return out, nil
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
