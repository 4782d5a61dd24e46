// Package tui implements the terminal chat client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/conversation"
)

// Backend is the API surface the chat model uses.
type Backend interface {
	Ask(ctx context.Context, sessionID, query string) (*answer.Response, error)
	SaveExport(ctx context.Context, sessionID string) (string, error)
}

type answerMsg struct {
	resp *answer.Response
	err  error
}

type exportMsg struct {
	path string
	err  error
}

type line struct {
	question string
	answer   string
	sources  []string
	failed   bool
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	ctx       context.Context
	backend   Backend
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	lines     []line
	sessionID string
	waiting   bool
	status    string
	ready     bool
}

// New creates a chat model backed by b.
func New(ctx context.Context, b Backend) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your vault and press Enter"
	ti.Focus()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		backend:  b,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Enter: ask  Ctrl+E: save chat to vault  Ctrl+C: quit",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and backend events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-fh-ih-3)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlE:
			if m.waiting || m.sessionID == "" {
				return m, nil
			}
			m.status = "Saving chat..."
			return m, m.export()
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.lines = append(m.lines, line{question: q})
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.waiting = false
		last := &m.lines[len(m.lines)-1]
		if msg.resp != nil {
			m.sessionID = msg.resp.SessionID
			last.answer = msg.resp.Answer
			last.sources = msg.resp.Sources
		}
		if msg.err != nil {
			last.failed = true
			last.answer = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case exportMsg:
		if msg.err != nil {
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Saved to " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the transcript, the input box and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Ansuz")
	status := statusStyle.Render(m.status)
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m Model) render() string {
	if len(m.lines) == 0 {
		return hintStyle.Render("No questions yet.")
	}
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(questionStyle.Render("You: " + l.question))
		b.WriteString("\n")
		switch {
		case l.answer == "" && m.waiting && i == len(m.lines)-1:
			b.WriteString(m.spinner.View() + " thinking...")
		case l.failed:
			b.WriteString(errorStyle.Render(l.answer))
		default:
			b.WriteString(l.answer)
		}
		b.WriteString("\n")
		if len(l.sources) > 0 {
			b.WriteString(hintStyle.Render(formatSources(l.sources)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// formatSources renders sources as vault wikilinks.
func formatSources(sources []string) string {
	links := make([]string, len(sources))
	for i, s := range sources {
		links[i] = conversation.SourceLink(s)
	}
	return fmt.Sprintf("Sources: %s", strings.Join(links, ", "))
}

func (m Model) ask(q string) tea.Cmd {
	ctx, b, id := m.ctx, m.backend, m.sessionID
	return func() tea.Msg {
		resp, err := b.Ask(ctx, id, q)
		return answerMsg{resp: resp, err: err}
	}
}

func (m Model) export() tea.Cmd {
	ctx, b, id := m.ctx, m.backend, m.sessionID
	return func() tea.Msg {
		path, err := b.SaveExport(ctx, id)
		return exportMsg{path: path, err: err}
	}
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Run starts the chat client against the API at addr.
func Run(ctx context.Context, addr, token string) error {
	p := tea.NewProgram(New(ctx, NewClient(addr, token)), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
