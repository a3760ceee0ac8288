package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/lua-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const historyWindow = 20

type replEntry struct {
	input  string
	output string
	isErr  bool
}

type replModel struct {
	rt      *runtime.Runtime
	input   textinput.Model
	history []replEntry
	past    []string // previous inputs, for up/down recall
	pastIdx int
}

func newReplModel(rt *runtime.Runtime) *replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("lua> ")
	ti.Width = 80
	ti.Focus()
	return &replModel{rt: rt, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			m.rt.Close()
			return m, tea.Quit

		case "up":
			if m.pastIdx > 0 {
				m.pastIdx--
				m.input.SetValue(m.past[m.pastIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.pastIdx < len(m.past)-1 {
				m.pastIdx++
				m.input.SetValue(m.past[m.pastIdx])
				m.input.CursorEnd()
			} else {
				m.pastIdx = len(m.past)
				m.input.SetValue("")
			}
			return m, nil

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			m.past = append(m.past, line)
			m.pastIdx = len(m.past)
			m.history = append(m.history, m.evaluate(line))
			if len(m.history) > historyWindow {
				m.history = m.history[len(m.history)-historyWindow:]
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// evaluate runs one REPL line. Eval already falls back from expression
// to statement parsing, so both "1 + 1" and "x = 1" work.
func (m *replModel) evaluate(line string) replEntry {
	v, err := m.rt.Eval(line)
	if err != nil {
		return replEntry{input: line, output: err.Error(), isErr: true}
	}
	if v == nil {
		return replEntry{input: line}
	}
	return replEntry{input: line, output: render(v)}
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("luarun"))
	b.WriteString(" interactive session")
	if max := m.rt.MaxMemory(); max > 0 {
		b.WriteString(fmt.Sprintf("  [%d/%d bytes]", m.rt.MemoryUsed(), max))
	}
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(promptStyle.Render("lua> "))
		b.WriteString(e.input)
		b.WriteString("\n")
		if e.output != "" {
			if e.isErr {
				b.WriteString(errorStyle.Render(e.output))
			} else {
				b.WriteString(resultStyle.Render(e.output))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("↑/↓ history • enter evaluate • ctrl+c quit"))
	return b.String()
}

func runInteractive(opts *runtime.Options) error {
	rt, err := runtime.New(opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(newReplModel(rt), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
