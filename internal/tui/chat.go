// Package tui is the interactive terminal session: the counselor asks, the user
// answers, and every answer goes through the extraction pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
)

// Asker produces questions and closes sessions.
type Asker interface {
	NextQuestion(ctx context.Context, sessionID string) (model.Question, error)
	CompleteSession(ctx context.Context, sessionID string) (model.Session, error)
}

// Answerer runs answers through the pipeline.
type Answerer interface {
	SubmitAnswer(ctx context.Context, in pipeline.SubmitAnswerInput) (pipeline.Result, error)
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	specStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type questionMsg struct {
	question model.Question
	err      error
}

type answerMsg struct {
	result pipeline.Result
	err    error
}

type completedMsg struct {
	err error
}

// Model is the bubbletea model of a chat session.
type Model struct {
	ctx       context.Context
	asker     Asker
	answerer  Answerer
	sessionID string
	project   string

	input    textarea.Model
	spinner  spinner.Model
	question *model.Question
	maturity int
	lines    []string
	pending  string
	busy     bool
	done     bool
	width    int
}

// New creates a chat model for an active session.
func New(ctx context.Context, asker Asker, answerer Answerer, project model.Project, sessionID string) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your answer, Enter to send, /done to finish"
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		asker:     asker,
		answerer:  answerer,
		sessionID: sessionID,
		project:   project.Name,
		maturity:  project.MaturityScore,
		input:     ta,
		spinner:   sp,
		busy:      true,
		width:     80,
	}
}

// Init starts the spinner and fetches the first question.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.fetchQuestion())
}

func (m Model) fetchQuestion() tea.Cmd {
	return func() tea.Msg {
		q, err := m.asker.NextQuestion(m.ctx, m.sessionID)
		return questionMsg{question: q, err: err}
	}
}

func (m Model) submit(questionID, answer string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.answerer.SubmitAnswer(m.ctx, pipeline.SubmitAnswerInput{
			SessionID:  m.sessionID,
			QuestionID: questionID,
			Answer:     answer,
		})
		return answerMsg{result: res, err: err}
	}
}

func (m Model) complete() tea.Cmd {
	return func() tea.Msg {
		_, err := m.asker.CompleteSession(m.ctx, m.sessionID)
		return completedMsg{err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(msg.Width - 2)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.onEnter()
		}

	case questionMsg:
		m.busy = false
		if msg.err != nil {
			m.lines = append(m.lines, errorStyle.Render("error: "+msg.err.Error()))
			return m, nil
		}
		q := msg.question
		m.question = &q
		m.lines = append(m.lines, questionStyle.Render(fmt.Sprintf("[%s] %s", q.Category, q.Text)))
		return m, nil

	case answerMsg:
		m.busy = false
		return m.onResult(msg)

	case completedMsg:
		m.busy = false
		if msg.err != nil {
			m.lines = append(m.lines, errorStyle.Render("error: "+msg.err.Error()))
			return m, nil
		}
		m.done = true
		m.lines = append(m.lines, helpStyle.Render(fmt.Sprintf("Session completed at maturity %d%%.", m.maturity)))
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) onEnter() (tea.Model, tea.Cmd) {
	if m.busy || m.done {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/done":
		m.busy = true
		return m, m.complete()
	case "/skip":
		m.busy = true
		return m, m.fetchQuestion()
	}
	if m.question == nil {
		return m, nil
	}
	m.lines = append(m.lines, answerStyle.Render("> "+text))
	m.pending = text
	m.busy = true
	return m, m.submit(m.question.ID, text)
}

func (m Model) onResult(msg answerMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		line := "error: " + msg.err.Error()
		if model.Retryable(msg.err) {
			line += " (press Enter to retry)"
			m.input.SetValue(m.pending)
		}
		m.lines = append(m.lines, errorStyle.Render(line))
		return m, nil
	}
	res := msg.result
	m.maturity = res.MaturityScore
	if !res.Committed {
		for _, c := range res.Conflicts {
			m.lines = append(m.lines, conflictStyle.Render(fmt.Sprintf("conflict (%s, %s): %s", c.Type, c.Severity, c.Description)))
		}
		m.lines = append(m.lines, helpStyle.Render("Nothing was recorded. Resolve with `socratic conflict resolve`, or answer differently."))
		return m, nil
	}
	for _, s := range res.Specs {
		m.lines = append(m.lines, specStyle.Render(fmt.Sprintf("+ %s/%s: %s", s.Category, s.Key, s.Value)))
	}
	if len(res.Specs) == 0 {
		m.lines = append(m.lines, helpStyle.Render("No specifications found in that answer."))
	}
	m.busy = true
	return m, m.fetchQuestion()
}

// View renders the transcript and the input box.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("socratic - %s - maturity %d%%", m.project, m.maturity)))
	b.WriteString("\n\n")
	for _, l := range m.lines {
		b.WriteString(lipgloss.NewStyle().Width(m.width).Render(l))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.done {
		return b.String()
	}
	if m.busy {
		b.WriteString(m.spinner.View() + " thinking...\n")
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter: send  /skip: another question  /done: finish  esc: quit"))
	return b.String()
}

// Run starts the program on the terminal.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(m.ctx)).Run()
	return err
}
