package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/autocoder/internal/classify"
)

// Prompter asks yes/no/quit on a line-oriented terminal. Invalid answers are
// asked again. End of input is treated as quit.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes the proposal to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Review prints the proposal and reads a decision. Reads are not
// interruptible; ctx is checked before each question.
func (p *Prompter) Review(ctx context.Context, prop classify.Proposal) (classify.Decision, error) {
	if prop.Notice != "" {
		fmt.Fprintln(p.out, prop.Notice)
		fmt.Fprintln(p.out)
	}
	WriteProposal(p.out, prop)

	for {
		if err := ctx.Err(); err != nil {
			return classify.Decision{}, err
		}
		answer, err := p.ask("Do you approve these lists? (yes/no/quit): ")
		if err != nil {
			return p.endOfInput(err)
		}
		switch strings.ToLower(answer) {
		case "yes", "y":
			return classify.Decision{Action: classify.ActionAccept}, nil
		case "quit", "q":
			return classify.Decision{Action: classify.ActionAbort}, nil
		case "no", "n":
			changes, err := p.ask("Please describe the changes you want: ")
			if err != nil {
				return p.endOfInput(err)
			}
			if changes == "" {
				fmt.Fprintln(p.out, "No changes given.")
				continue
			}
			return classify.Decision{Action: classify.ActionRequestChanges, Changes: changes}, nil
		default:
			fmt.Fprintln(p.out, "Invalid input. Please enter 'yes', 'no', or 'quit'.")
		}
	}
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompter) endOfInput(err error) (classify.Decision, error) {
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(p.out)
		return classify.Decision{Action: classify.ActionAbort}, nil
	}
	return classify.Decision{}, fmt.Errorf("read answer: %w", err)
}
