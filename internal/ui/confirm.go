package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tungetti/carve/internal/errors"
)

// ConfirmPrompt asks a yes/no question in the terminal.
type ConfirmPrompt struct {
	styles Styles
	run    func(tea.Model) (tea.Model, error)
}

// ConfirmOption configures the confirmation prompt.
type ConfirmOption func(*ConfirmPrompt)

// WithConfirmStyles overrides the prompt styling.
func WithConfirmStyles(styles Styles) ConfirmOption {
	return func(p *ConfirmPrompt) {
		p.styles = styles
	}
}

// WithConfirmRunner overrides how the bubbletea program is run
// (useful for testing).
func WithConfirmRunner(run func(tea.Model) (tea.Model, error)) ConfirmOption {
	return func(p *ConfirmPrompt) {
		p.run = run
	}
}

// NewConfirmPrompt creates an interactive yes/no prompt.
func NewConfirmPrompt(opts ...ConfirmOption) *ConfirmPrompt {
	p := &ConfirmPrompt{
		styles: DefaultStyles(),
		run: func(m tea.Model) (tea.Model, error) {
			return tea.NewProgram(m).Run()
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Confirm asks the question with a default answer and returns the user's
// choice. Aborting the prompt returns an error, not the default.
func (p *ConfirmPrompt) Confirm(question string, defaultYes bool) (bool, error) {
	final, err := p.run(newConfirmModel(question, defaultYes, p.styles))
	if err != nil {
		return false, errors.Wrap(errors.Execution, "confirmation prompt failed", err).WithOp("ui.Confirm")
	}

	m, ok := final.(confirmModel)
	if !ok {
		return false, errors.New(errors.Execution, "confirmation prompt returned unexpected model").WithOp("ui.Confirm")
	}
	if m.aborted {
		return false, errors.New(errors.Execution, "confirmation aborted").WithOp("ui.Confirm")
	}
	return m.answer, nil
}

// confirmModel is the bubbletea model behind the yes/no prompt.
type confirmModel struct {
	question string
	answer   bool
	decided  bool
	aborted  bool
	styles   Styles
	keyMap   confirmKeyMap
}

func newConfirmModel(question string, defaultYes bool, styles Styles) confirmModel {
	return confirmModel{
		question: question,
		answer:   defaultYes,
		styles:   styles,
		keyMap:   defaultConfirmKeyMap(),
	}
}

// Init implements tea.Model.
func (m confirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keyMap.Quit):
		m.aborted = true
		return m, tea.Quit

	case key.Matches(keyMsg, m.keyMap.Yes):
		m.answer = true
		m.decided = true
		return m, tea.Quit

	case key.Matches(keyMsg, m.keyMap.No):
		m.answer = false
		m.decided = true
		return m, tea.Quit

	case key.Matches(keyMsg, m.keyMap.Toggle):
		m.answer = !m.answer

	case key.Matches(keyMsg, m.keyMap.Accept):
		m.decided = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m confirmModel) View() string {
	if m.decided || m.aborted {
		return ""
	}

	yes := m.styles.Button.Render("[ Yes ]")
	no := m.styles.ButtonActive.Render("[ No ]")
	if m.answer {
		yes = m.styles.ButtonActive.Render("[ Yes ]")
		no = m.styles.Button.Render("[ No ]")
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.question))
	b.WriteString("\n")
	b.WriteString(yes + "  " + no)
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("y/n: answer • ←/→: toggle • enter: accept • esc: abort"))
	b.WriteString("\n")
	return b.String()
}
