package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/pci"
)

// DeviceChooser prompts the user to pick one device from an ambiguous
// candidate list. It implements pci.Chooser.
type DeviceChooser struct {
	styles Styles
	run    func(tea.Model) (tea.Model, error)
}

// ChooserOption configures the device chooser.
type ChooserOption func(*DeviceChooser)

// WithChooserStyles overrides the prompt styling.
func WithChooserStyles(styles Styles) ChooserOption {
	return func(c *DeviceChooser) {
		c.styles = styles
	}
}

// WithProgramRunner overrides how the bubbletea program is run
// (useful for testing).
func WithProgramRunner(run func(tea.Model) (tea.Model, error)) ChooserOption {
	return func(c *DeviceChooser) {
		c.run = run
	}
}

// NewDeviceChooser creates an interactive device chooser.
func NewDeviceChooser(opts ...ChooserOption) *DeviceChooser {
	c := &DeviceChooser{
		styles: DefaultStyles(),
		run: func(m tea.Model) (tea.Model, error) {
			return tea.NewProgram(m).Run()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Choose presents the candidates and returns the 1-based index of the
// user's pick. Aborting the prompt is a selection failure, never a
// silent default.
func (c *DeviceChooser) Choose(candidates []pci.Device) (int, error) {
	if len(candidates) == 0 {
		return 0, errors.ErrNoCandidates
	}

	final, err := c.run(newChooserModel(candidates, c.styles))
	if err != nil {
		return 0, errors.Wrap(errors.Selection, "device chooser failed", err).WithOp("ui.Choose")
	}

	m, ok := final.(chooserModel)
	if !ok {
		return 0, errors.New(errors.Selection, "device chooser returned unexpected model").WithOp("ui.Choose")
	}
	if m.aborted {
		return 0, errors.Wrap(errors.Selection, "device selection aborted", errors.ErrAmbiguousSelection).WithOp("ui.Choose")
	}
	return m.cursor + 1, nil
}

// chooserModel is the bubbletea model behind the device chooser.
type chooserModel struct {
	devices []pci.Device
	cursor  int
	chosen  bool
	aborted bool
	styles  Styles
	keyMap  chooserKeyMap
}

func newChooserModel(devices []pci.Device, styles Styles) chooserModel {
	return chooserModel{
		devices: devices,
		styles:  styles,
		keyMap:  defaultChooserKeyMap(),
	}
}

// Init implements tea.Model.
func (m chooserModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m chooserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keyMap.Quit):
		m.aborted = true
		return m, tea.Quit

	case key.Matches(keyMsg, m.keyMap.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(keyMsg, m.keyMap.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case key.Matches(keyMsg, m.keyMap.Select):
		m.chosen = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m chooserModel) View() string {
	if m.chosen || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Multiple display devices found. Select the one to pass through:"))
	b.WriteString("\n")

	for i, d := range m.devices {
		cursor := "  "
		style := m.styles.Item
		if i == m.cursor {
			cursor = m.styles.Cursor.Render("> ")
			style = m.styles.ItemSelected
		}

		b.WriteString(fmt.Sprintf("%s%s\n", cursor, style.Render(fmt.Sprintf("%s  %s", d.Address, d.Name))))

		detail := fmt.Sprintf("    %s", d.Class)
		if pair := d.IDPair(); pair != "" {
			detail += fmt.Sprintf("  [%s]", pair)
		}
		if d.HasDriver() {
			detail += fmt.Sprintf("  driver: %s", d.Driver)
		}
		b.WriteString(m.styles.ItemDetail.Render(detail))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("up/k, down/j: move • enter: select • q/esc: abort"))
	b.WriteString("\n")
	return b.String()
}
