package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-jit/bytecode"
	"github.com/wippyai/wasm-jit/vm"
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

	nativeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#90EE90"))

	interpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const refreshInterval = 200 * time.Millisecond

var bursts = []int{1, 100, 10000}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
)

type dashboard struct {
	err      error
	s        *session
	result   string
	funcs    []bytecode.FunctionInfo
	inputs   []textinput.Model
	mode     vm.Mode
	selected int
	focusIdx int
	burst    int
	state    modelState
}

type tickMsg time.Time

type callResultMsg struct {
	err    error
	result string
	tier   vm.Tier
	calls  int
}

func newDashboard(s *session, mode vm.Mode) *dashboard {
	return &dashboard{
		s:     s,
		mode:  mode,
		funcs: s.mod.Bytecode().GetFunctionsInfo(),
		state: stateSelectFunc,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *dashboard) Init() tea.Cmd {
	return tick()
}

func (m *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "m":
			if m.state == stateSelectFunc {
				m.mode = (m.mode + 1) % (vm.ModeCompiled + 1)
			}

		case "b":
			if m.state == stateSelectFunc {
				m.burst = (m.burst + 1) % len(bursts)
			}

		case "t":
			if m.state == stateSelectFunc {
				if res, err := m.s.handOver(); err != nil {
					m.err = err
				} else {
					m.result = "owned by manager as " + res.String()
				}
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callCmd()
				}
				m.state = stateInputArgs

			case stateInputArgs:
				m.state = stateSelectFunc
				return m, m.callCmd()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state == stateInputArgs {
				m.state = stateSelectFunc
				m.inputs = nil
			}
		}

	case tickMsg:
		return m, tick()

	case callResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.result = fmt.Sprintf("%s ×%d via %s", msg.result, msg.calls, msg.tier)
		}
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *dashboard) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = bytecode.TypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callCmd captures the call inputs now and runs the calls off the UI loop.
func (m *dashboard) callCmd() tea.Cmd {
	f := m.funcs[m.selected]
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	mode, n, s := m.mode, bursts[m.burst], m.s

	return func() tea.Msg {
		params, err := encodeArgs(f, raw)
		if err != nil {
			return callResultMsg{err: err}
		}

		ctx := context.Background()
		var out callResultMsg
		for i := 0; i < n; i++ {
			out.result, out.tier, out.err = s.call(ctx, mode, f, params)
			if out.err != nil {
				return out
			}
			out.calls++
		}
		return out
	}
}

func (m *dashboard) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("JIT Dashboard"))
	b.WriteString(" ")
	b.WriteString(m.s.file)
	b.WriteString("\n\n")

	total, native := m.s.mod.Calls()
	fmt.Fprintf(&b, "mode %s • burst ×%d • state %s • calls %d (%d native)\n\n",
		typeStyle.Render(m.mode.String()), bursts[m.burst],
		typeStyle.Render(m.s.mod.State().String()), total, native)

	for i, f := range m.funcs {
		line := fmt.Sprintf("%-24s %s", f.Name, f.Signature())
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + funcStyle.Render(line))
		}
		b.WriteString("  ")
		b.WriteString(tierStyle(m.s.mod.Tier(f.Name)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.state == stateInputArgs {
		f := m.funcs[m.selected]
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(bytecode.TypeName(f.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.s.mod.Failure() != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Compile failed: %v", m.s.mod.Failure())))
	default:
		b.WriteString(m.result)
	}
	b.WriteString("\n\n")

	st := m.s.mgr.Stats()
	b.WriteString(helpStyle.Render(fmt.Sprintf("manager: submitted %d • compiled %d • skipped %d • failed %d • owned %d",
		st.Submitted, st.Compiled, st.Skipped, st.Failed, st.Modules)))
	b.WriteString("\n")

	if m.state == stateInputArgs {
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • m mode • b burst • t transfer • q quit"))
	}
	return b.String()
}

func tierStyle(t vm.Tier) string {
	if t == vm.TierNative {
		return nativeStyle.Render(t.String())
	}
	return interpStyle.Render(t.String())
}

func runInteractive(s *session, mode vm.Mode) error {
	p := tea.NewProgram(newDashboard(s, mode), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
