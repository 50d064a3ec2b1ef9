package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectMember modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	cfg      config
	log      *zap.Logger
	session  *session
	members  []member
	result   string
	input    textinput.Model
	selected int
	state    modelState
	loaded   bool
}

func newInteractiveModel(cfg config, log *zap.Logger) *interactiveModel {
	return &interactiveModel{cfg: cfg, log: log, state: stateSelectMember}
}

type loadedMsg struct {
	err     error
	session *session
	members []member
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := open(m.cfg, m.log)
	if err != nil {
		return loadedMsg{err: err}
	}
	members, err := s.members()
	if err != nil {
		s.close()
		return loadedMsg{err: err}
	}
	return loadedMsg{session: s, members: members}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()

		case "q":
			if m.state != stateInputArgs {
				return m.quit()
			}

		case "up", "k":
			if m.state == stateSelectMember && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMember && m.selected < len(m.members)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectMember:
				if len(m.members) == 0 {
					break
				}
				mem := m.members[m.selected]
				if !mem.executable {
					return m, m.read
				}
				m.prepareInput(mem)
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.call

			case stateShowResult:
				m.state = stateSelectMember
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs, stateShowResult:
				m.state = stateSelectMember
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.members = msg.members

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	if m.session != nil {
		m.session.close()
	}
	return m, tea.Quit
}

func (m *interactiveModel) prepareInput(mem member) {
	ti := textinput.New()
	ti.Placeholder = mem.signature
	ti.Prompt = "args: "
	ti.Width = 40
	ti.Focus()
	m.input = ti
}

// call invokes the selected member with the typed arguments.
func (m *interactiveModel) call() tea.Msg {
	name := m.members[m.selected].name
	args, err := parseArgs(m.input.Value())
	if err != nil {
		return callResultMsg{err: err}
	}
	v, err := m.session.result.Invoke(name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: v.String()}
}

// read shows a member that is not executable.
func (m *interactiveModel) read() tea.Msg {
	v, err := m.session.result.Member(m.members[m.selected].name)
	if err != nil {
		return callResultMsg{err: err}
	}
	s := v.String()
	if v.HasBufferElements() {
		if n, err := v.BufferSize(); err == nil {
			s = fmt.Sprintf("%s (%d bytes)", s, n)
		}
	}
	return callResultMsg{result: s}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Loading source..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Polyglot"))
	b.WriteString(" ")
	b.WriteString(m.cfg.file)
	b.WriteString("\n\n")

	if len(m.members) == 0 {
		b.WriteString(resultStyle.Render(m.session.result.String()))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateSelectMember:
		b.WriteString("Select a member:\n\n")
		for i, mem := range m.members {
			line := formatMember(mem)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		mem := m.members[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(mem.name)))
		b.WriteString(m.input.View())
		b.WriteString(" ")
		b.WriteString(typeStyle.Render(mem.signature))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		mem := m.members[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(mem.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatMember(mem member) string {
	if mem.executable {
		return funcStyle.Render(mem.name) + " " + typeStyle.Render(mem.signature)
	}
	return mem.name + " " + typeStyle.Render(mem.signature)
}

func runInteractive(cfg config, log *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(cfg, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
