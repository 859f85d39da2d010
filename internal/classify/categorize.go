package classify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasnoah/autocoder/internal/prompt"
)

const (
	includedHeader = "project items:"
	excludedHeader = "excluded items:"
)

// ErrUnparsable is returned when a reply does not contain both labelled lists.
var ErrUnparsable = errors.New("reply does not contain project and excluded item lists")

// Lists is the raw pair of labelled lists found in a reply.
type Lists struct {
	Included []string
	Excluded []string
}

// ParseLists extracts the "Project Items:" and "Excluded Items:" lists from
// text. Headers are matched case-insensitively and may carry Markdown
// emphasis. Entries are "- name" or "* name" lines; " (file)" and
// " (directory)" annotations and trailing slashes are removed.
func ParseLists(text string) (Lists, error) {
	var (
		out     Lists
		current *[]string
		sawInc  bool
		sawExc  bool
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		header := strings.ToLower(strings.Trim(line, "*#_ "))
		switch header {
		case includedHeader:
			current, sawInc = &out.Included, true
			continue
		case excludedHeader:
			current, sawExc = &out.Excluded, true
			continue
		}
		if current == nil {
			continue
		}
		name, ok := listEntry(line)
		if !ok {
			continue
		}
		*current = append(*current, name)
	}
	if err := sc.Err(); err != nil {
		return Lists{}, err
	}
	if !sawInc || !sawExc {
		return Lists{}, ErrUnparsable
	}
	return out, nil
}

func listEntry(line string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(line, "- "):
		rest = line[2:]
	case strings.HasPrefix(line, "* "):
		rest = line[2:]
	default:
		return "", false
	}
	rest = strings.TrimSpace(rest)
	for _, suffix := range []string{"(file)", "(directory)", "(dir)"} {
		rest = strings.TrimSpace(strings.TrimSuffix(rest, suffix))
	}
	rest = strings.Trim(rest, "`")
	rest = strings.TrimPrefix(rest, "./")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return "", false
	}
	return rest, true
}

// reconcile maps parsed names back onto the known items. Names that match
// nothing are dropped, an item named in both lists is excluded, and an item
// named in neither keeps its bucket from prev.
func reconcile(items []Item, prev map[string]bool, lists Lists) partition {
	inc := toSet(lists.Included)
	exc := toSet(lists.Excluded)
	var p partition
	for _, it := range items {
		switch {
		case exc[it.Path]:
			p.excluded = append(p.excluded, it)
		case inc[it.Path]:
			p.included = append(p.included, it)
		case prev[it.Path]:
			p.included = append(p.included, it)
		default:
			p.excluded = append(p.excluded, it)
		}
	}
	return p
}

func (c *Classifier) askCategorize(ctx context.Context, candidates []Item) (partition, error) {
	text, err := prompt.LoadAndRender(prompt.Categorize, c.fs.Root(), prompt.Vars{
		"items": describeItems(candidates),
	})
	if err != nil {
		return partition{}, err
	}
	reply, err := c.client.Complete(ctx, text, c.maxTokens)
	if err != nil {
		return partition{}, fmt.Errorf("categorize: %w", err)
	}
	lists, err := ParseLists(reply)
	if err != nil {
		return partition{}, fmt.Errorf("categorize: %w", err)
	}
	all := make(map[string]bool, len(candidates))
	for _, it := range candidates {
		all[it.Path] = true
	}
	return reconcile(candidates, all, lists), nil
}

func (c *Classifier) askRevise(ctx context.Context, p partition, auto []Item, changes string) (partition, error) {
	if c.client == nil {
		return partition{}, errors.New("no generation service configured")
	}
	text, err := prompt.LoadAndRender(prompt.Revise, c.fs.Root(), prompt.Vars{
		"included":      bulletList(p.included),
		"excluded":      bulletList(p.excluded),
		"auto_excluded": bulletList(auto),
		"changes":       strings.TrimSpace(changes),
	})
	if err != nil {
		return partition{}, err
	}
	reply, err := c.client.Complete(ctx, text, c.maxTokens)
	if err != nil {
		return partition{}, fmt.Errorf("revise: %w", err)
	}
	lists, err := ParseLists(reply)
	if err != nil {
		return partition{}, fmt.Errorf("revise: %w", err)
	}

	items := append(append([]Item(nil), p.included...), p.excluded...)
	sortItems(items)
	prev := make(map[string]bool, len(p.included))
	for _, it := range p.included {
		prev[it.Path] = true
	}
	return reconcile(items, prev, lists), nil
}

func describeItems(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		kind := "file"
		if it.IsDir {
			kind = "directory"
		}
		fmt.Fprintf(&b, "- %s (%s)\n", it.Path, kind)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func bulletList(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- " + it.String() + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
