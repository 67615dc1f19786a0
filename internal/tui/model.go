package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"smartdoc/internal/models"
)

// ExitCommand ends the chat.
const ExitCommand = "exit"

// ChatPort is the TUI-facing subset of a session.
type ChatPort interface {
	Ask(ctx context.Context, question string) (models.QARecord, error)
	Summarize(ctx context.Context, answer string) (string, error)
	Source() string
}

type exchange struct {
	record  models.QARecord
	summary string
}

type answerMsg struct {
	exchange exchange
	err      error
}

// Model is the Bubble Tea model of the chat.
type Model struct {
	ctx       context.Context
	port      ChatPort
	summarize bool
	input     textinput.Model
	viewport  viewport.Model
	exchanges []exchange
	status    string
	busy      bool
	ready     bool
}

func New(ctx context.Context, port ChatPort, summarize bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or type exit"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:       ctx,
		port:      port,
		summarize: summarize,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    fmt.Sprintf("Chatting with %s", port.Source()),
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.exchanges = append(m.exchanges, msg.exchange)
		m.status = fmt.Sprintf("%d question(s) answered", len(m.exchanges))
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" {
			q := strings.TrimSpace(m.input.Value())
			switch {
			case strings.EqualFold(q, ExitCommand):
				return m, tea.Quit
			case q == "" || m.busy:
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.status = "Thinking..."
			return m, m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx, port, summarize := m.ctx, m.port, m.summarize
	return func() tea.Msg {
		rec, err := port.Ask(ctx, question)
		if err != nil {
			return answerMsg{err: err}
		}
		ex := exchange{record: rec}
		if summarize && rec.Answer != models.NoRelevantContent {
			if ex.summary, err = port.Summarize(ctx, rec.Answer); err != nil {
				return answerMsg{err: err}
			}
		}
		return answerMsg{exchange: ex}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("smartdoc")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.exchanges) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: ") + ex.record.Question + "\n")
		b.WriteString(botStyle.Render("Assistant: ") + ex.record.Answer)
		if ex.summary != "" {
			b.WriteString("\n" + botStyle.Render("Summary: ") + ex.summary)
		}
		if len(ex.record.Sources) > 0 {
			b.WriteString("\n" + sourceStyle.Render("Sources: "+formatSources(ex.record.Sources)))
		}
	}
	return b.String()
}

func formatSources(chunks []models.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("chunk %d (page %d)", c.ChunkID, c.PageNumber))
	}
	return strings.Join(parts, ", ")
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
