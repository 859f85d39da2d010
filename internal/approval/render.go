// Package approval implements classify.Approver for people: a line-based
// prompt and a full-screen terminal UI.
package approval

import (
	"fmt"
	"io"

	"github.com/lucasnoah/autocoder/internal/classify"
)

// WriteProposal prints the three lists of a proposal.
func WriteProposal(w io.Writer, p classify.Proposal) {
	writeList(w, "Project Items:", p.Included)
	writeList(w, "Excluded Items:", p.Excluded)
	if len(p.AutoExcluded) > 0 {
		writeList(w, "Automatically Excluded Items:", p.AutoExcluded)
	}
}

func writeList(w io.Writer, title string, items []classify.Item) {
	fmt.Fprintln(w, title)
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
	fmt.Fprintln(w)
}
