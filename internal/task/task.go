// Package task turns a free-text request into a structured task descriptor.
package task

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind is the closed set of task categories.
type Kind string

const (
	KindAddFeature Kind = "add-feature"
	KindFixBug     Kind = "fix-bug"
	KindRefactor   Kind = "refactor"
	KindOptimize   Kind = "optimize"
	KindTest       Kind = "test"
	KindDocument   Kind = "document"
	KindUnknown    Kind = "unknown"
)

// Task is the interpreted form of a request.
type Task struct {
	Kind        Kind     `json:"kind"`
	TargetFiles []string `json:"target_files"`
	Subtasks    []string `json:"subtasks"`
	Description string   `json:"description"`
}

type keywordGroup struct {
	kind     Kind
	keywords []string
}

// keywordTable is evaluated top to bottom and the first group with a hit
// decides the kind. Keywords are lowercase substrings of the lowercased
// text. fix-bug sits ahead of add-feature so "fix X and add a test" is a
// bug fix.
var keywordTable = []keywordGroup{
	{KindFixBug, []string{"fix", "bug", "issue", "problem", "error"}},
	{KindAddFeature, []string{"add", "create", "implement", "new feature"}},
	{KindRefactor, []string{"refactor", "restructure", "reorganize"}},
	{KindOptimize, []string{"optimize", "improve performance", "speed up"}},
	{KindTest, []string{"test", "unit test", "integration test"}},
	{KindDocument, []string{"document", "add comments", "explain"}},
}

var (
	// fileRe matches name.ext anywhere in the text, optionally with a
	// directory prefix.
	fileRe = regexp.MustCompile(`(?:[\w.-]+/)*[\w-][\w.-]*\.[A-Za-z][A-Za-z0-9]{0,9}\b`)

	sentenceRe = regexp.MustCompile(`[.!?]+\s+`)
	// clauseRe splits "X and fix Y" / "X, then add Y" where the next clause
	// starts with an action verb.
	clauseRe = regexp.MustCompile(`(?i)(?:,?\s+and\s+|,\s*then\s+|;\s*)(add|fix|create|implement|write|update|remove|refactor|test|document|optimize|rename|delete|move|improve|change|make|ensure)\b`)
)

// notFiles are abbreviations that look like name.ext tokens.
var notFiles = map[string]bool{
	"e.g": true,
	"i.e": true,
}

// Interpret classifies text, extracts target files and splits it into
// subtasks. Subtask splitting is a sentence and clause heuristic only.
func Interpret(text string) Task {
	text = strings.TrimSpace(text)
	return Task{
		Kind:        ClassifyKind(text),
		TargetFiles: ExtractFiles(text),
		Subtasks:    SplitSubtasks(text),
		Description: text,
	}
}

// ClassifyKind returns the kind of the first keyword group that matches.
func ClassifyKind(text string) Kind {
	lower := strings.ToLower(text)
	for _, g := range keywordTable {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.kind
			}
		}
	}
	return KindUnknown
}

// ExtractFiles returns filename-like substrings, deduplicated and sorted.
func ExtractFiles(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range fileRe.FindAllString(text, -1) {
		m = strings.TrimPrefix(m, "./")
		if notFiles[strings.ToLower(m)] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// SplitSubtasks breaks text into sentences and then into verb-led clauses.
func SplitSubtasks(text string) []string {
	var out []string
	for _, sentence := range sentenceRe.Split(text, -1) {
		for _, clause := range splitClauses(sentence) {
			clause = strings.TrimSpace(clause)
			clause = strings.TrimRight(clause, ".!? ")
			if clause != "" {
				out = append(out, clause)
			}
		}
	}
	return out
}

func splitClauses(sentence string) []string {
	locs := clauseRe.FindAllStringSubmatchIndex(sentence, -1)
	if locs == nil {
		return []string{sentence}
	}
	var parts []string
	start := 0
	for _, loc := range locs {
		parts = append(parts, sentence[start:loc[0]])
		// The verb (group 1) opens the next clause.
		start = loc[2]
	}
	return append(parts, sentence[start:])
}

// Prompt renders the task section handed to the generation service.
func Prompt(t Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task Type: %s\n", t.Kind)
	files := "none specified"
	if len(t.TargetFiles) > 0 {
		files = strings.Join(t.TargetFiles, ", ")
	}
	fmt.Fprintf(&b, "Affected Files: %s\n", files)
	fmt.Fprintf(&b, "Original Description: %s\n", t.Description)
	if len(t.Subtasks) > 0 {
		b.WriteString("\nSubtasks:\n")
		for i, s := range t.Subtasks {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}
	b.WriteString("\nPlease provide the necessary code changes to complete this task.\n")
	return b.String()
}
