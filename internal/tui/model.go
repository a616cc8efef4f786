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

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

// Conversation is the TUI-facing subset of a session.
type Conversation interface {
	Ask(ctx context.Context, question string) (string, error)
	View() session.View
}

type Options struct {
	Title string
	// AnswerSuffix is appended to assistant messages when rendered.
	AnswerSuffix string
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	conv     Conversation
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	busy     bool
	status   string
	ready    bool
}

// answerMsg carries the result of one Ask back into Update.
type answerMsg struct {
	answer string
	err    error
}

// New creates the chat model. ctx bounds every question sent from it.
func New(ctx context.Context, conv Conversation, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "PDF Chat"
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the PDF and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:      ctx,
		conv:     conv,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Ask anything about the document.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header+summary, status, input, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Answered."
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			question := m.input.Value()
			m.input.Reset()
			m.busy = true
			m.status = "Preparing answer..."
			cmd := m.ask(question)
			m.refresh()
			return m, tea.Batch(cmd, m.spinner.Tick)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx, conv := m.ctx, m.conv
	return func() tea.Msg {
		answer, err := conv.Ask(ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

// refresh re-renders the transcript and keeps the newest message in view.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript(m.conv.View()))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	v := m.conv.View()
	header := headerStyle.Render(m.opts.Title)
	summary := "No document loaded."
	if v.Document != nil {
		summary = fmt.Sprintf("%s (%d pages)", v.Document.Name, v.Document.Pages)
		if v.Document.Summary != "" {
			summary += ": " + v.Document.Summary
		}
	}
	statusStyle := okStyle
	if strings.HasPrefix(m.status, "Error") {
		statusStyle = errorStyle
	}
	return header + "\n" +
		mutedStyle.Render(truncate(summary, m.viewport.Width)) + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

func (m Model) renderTranscript(v session.View) string {
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for _, msg := range v.Messages() {
		switch msg.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
		case domain.RoleAssistant:
			b.WriteString(assistantStyle.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content + m.opts.AnswerSuffix))
		}
		b.WriteString("\n\n")
	}
	if m.busy {
		b.WriteString(assistantStyle.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " Preparing answer...")
	}
	if b.Len() == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	okStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
