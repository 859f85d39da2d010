package approval

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lucasnoah/autocoder/internal/classify"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	includedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	excludedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	autoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// TUI reviews proposals in a bubbletea program.
type TUI struct {
	in  io.Reader
	out io.Writer
}

// NewTUI returns a TUI. Nil in or out use the terminal.
func NewTUI(in io.Reader, out io.Writer) *TUI {
	return &TUI{in: in, out: out}
}

func (t *TUI) Review(ctx context.Context, prop classify.Proposal) (classify.Decision, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.in != nil {
		opts = append(opts, tea.WithInput(t.in))
	}
	if t.out != nil {
		opts = append(opts, tea.WithOutput(t.out))
	}
	final, err := tea.NewProgram(newReviewModel(prop), opts...).Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return classify.Decision{}, ctxErr
		}
		return classify.Decision{}, fmt.Errorf("run approval UI: %w", err)
	}
	m, ok := final.(reviewModel)
	if !ok || !m.done {
		return classify.Decision{Action: classify.ActionAbort}, nil
	}
	return m.decision, nil
}

type reviewModel struct {
	prop     classify.Proposal
	input    textinput.Model
	editing  bool
	done     bool
	decision classify.Decision
}

func newReviewModel(prop classify.Proposal) reviewModel {
	ti := textinput.New()
	ti.Placeholder = "e.g. exclude the docs directory"
	ti.CharLimit = 500
	ti.Width = 60
	return reviewModel{prop: prop, input: ti}
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.Type == tea.KeyCtrlC {
		return m.finish(classify.Decision{Action: classify.ActionAbort})
	}

	if m.editing {
		switch key.Type {
		case tea.KeyEsc:
			m.editing = false
			m.input.Blur()
			return m, nil
		case tea.KeyEnter:
			changes := strings.TrimSpace(m.input.Value())
			if changes == "" {
				return m, nil
			}
			return m.finish(classify.Decision{Action: classify.ActionRequestChanges, Changes: changes})
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "y", "enter":
		return m.finish(classify.Decision{Action: classify.ActionAccept})
	case "n", "e":
		m.editing = true
		cmd := m.input.Focus()
		return m, cmd
	case "q", "esc":
		return m.finish(classify.Decision{Action: classify.ActionAbort})
	}
	return m, nil
}

func (m reviewModel) finish(d classify.Decision) (tea.Model, tea.Cmd) {
	m.done = true
	m.decision = d
	m.input.Blur()
	return m, tea.Quit
}

func (m reviewModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Review project items (round %d)", m.prop.Round)))
	b.WriteString("\n\n")
	if m.prop.Notice != "" {
		b.WriteString(noticeStyle.Render(m.prop.Notice))
		b.WriteString("\n\n")
	}

	cols := []string{
		renderColumn("Project Items", m.prop.Included, includedStyle),
		renderColumn("Excluded Items", m.prop.Excluded, excludedStyle),
	}
	if len(m.prop.AutoExcluded) > 0 {
		cols = append(cols, renderColumn("Auto-excluded", m.prop.AutoExcluded, autoStyle))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n\n")

	if m.editing {
		b.WriteString("Describe the changes:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter: submit • esc: back • ctrl+c: abort"))
	} else {
		b.WriteString(helpStyle.Render("y/enter: approve • n: request changes • q: abort"))
	}
	b.WriteString("\n")
	return b.String()
}

func renderColumn(title string, items []classify.Item, style lipgloss.Style) string {
	lines := []string{titleStyle.Render(title)}
	if len(items) == 0 {
		lines = append(lines, helpStyle.Render("(none)"))
	}
	for _, it := range items {
		lines = append(lines, style.Render(it.String()))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
