// Package tui is the terminal chat client.
//
// Commands typed into the chat box:
//
//	/exit    - quit
//	/new     - start a new conversation
//	/history - reload the current conversation from the server
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/supportchat/pkg/client"
	"github.com/nstogner/supportchat/pkg/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

// Backend is the subset of the API client the UI needs.
type Backend interface {
	Login(ctx context.Context, username, password string) (domain.User, string, error)
	SendMessage(ctx context.Context, message, sessionID string) (*client.SendResult, error)
	GetHistory(ctx context.Context, conversationID string) (*client.History, error)
	CheckHealth(ctx context.Context) bool
}

type state int

const (
	stateLogin state = iota
	stateChatting
)

type entry struct {
	sender domain.Sender
	text   string
}

// Messages produced by commands.
type (
	errMsg     struct{ err error }
	healthMsg  bool
	loginMsg   struct{ user domain.User }
	retryMsg   client.RetryEvent
	replyMsg   struct{ res *client.SendResult }
	sendErrMsg struct{ err error }
	historyMsg struct{ h *client.History }
)

// Options configures the UI.
type Options struct {
	// SessionID resumes an existing conversation.
	SessionID string
	// SkipLogin goes straight to the chat view.
	SkipLogin bool
	// Retries delivers retry notifications from the client.
	Retries <-chan client.RetryEvent
}

type model struct {
	ctx     context.Context
	backend Backend
	retries <-chan client.RetryEvent

	state     state
	user      domain.User
	sessionID string
	pending   bool
	status    string
	healthy   bool
	width     int
	height    int
	err       error

	username  textinput.Model
	password  textinput.Model
	viewport  viewport.Model
	textarea  textarea.Model
	entries   []entry
	renderer  *glamour.TermRenderer
	loginStep int
}

func newModel(ctx context.Context, backend Backend, opts Options) model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "┃ "
	ta.CharLimit = 4096
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	user := textinput.New()
	user.Placeholder = "username"
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.EchoMode = textinput.EchoPassword

	vp := viewport.New(80, 20)
	vp.SetContent("Welcome! Ask us anything about your order, shipping or returns.")

	// "light" avoids terminal queries that leak into the input.
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	m := model{
		ctx:       ctx,
		backend:   backend,
		retries:   opts.Retries,
		state:     stateLogin,
		sessionID: opts.SessionID,
		username:  user,
		password:  pass,
		viewport:  vp,
		textarea:  ta,
		renderer:  r,
	}
	if opts.SkipLogin {
		m.state = stateChatting
		m.textarea.Focus()
		m.username.Blur()
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.checkHealth(), waitForRetry(m.retries)}
	if m.state == stateChatting && m.sessionID != "" {
		cmds = append(cmds, m.loadHistory())
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Keys only reach the inputs of the active view.
	if key, ok := msg.(tea.KeyMsg); ok && key.Type != tea.KeyEnter {
		var cmd tea.Cmd
		switch {
		case m.state == stateLogin && m.loginStep == 0:
			m.username, cmd = m.username.Update(msg)
		case m.state == stateLogin:
			m.password, cmd = m.password.Update(msg)
		case !m.pending:
			m.textarea, cmd = m.textarea.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 4
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			if m.state == stateLogin {
				m.toggleLoginField()
			}
		case tea.KeyEnter:
			if m.state == stateLogin {
				if m.loginStep == 0 {
					m.toggleLoginField()
					return m, nil
				}
				return m, m.login()
			}
			if m.pending {
				return m, nil
			}
			m.err = nil
			return m.submit()
		}

	case healthMsg:
		m.healthy = bool(msg)
		if !m.healthy {
			m.status = "Server unreachable"
		}

	case loginMsg:
		m.user = msg.user
		m.state = stateChatting
		m.username.Blur()
		m.password.Blur()
		m.password.Reset()
		m.textarea.Focus()
		m.status = fmt.Sprintf("Signed in as %s", msg.user.Name)
		if m.sessionID != "" {
			cmds = append(cmds, m.loadHistory())
		}

	case retryMsg:
		if m.pending {
			m.status = fmt.Sprintf("Retrying (attempt %d/%d) in %s...",
				msg.Attempt, msg.MaxAttempts, msg.Delay.Round(100*time.Millisecond))
		}
		cmds = append(cmds, waitForRetry(m.retries))

	case replyMsg:
		m.pending = false
		m.status = ""
		m.sessionID = msg.res.SessionID
		m.entries = append(m.entries, entry{sender: domain.SenderAssistant, text: msg.res.Reply})
		m.refresh()

	case sendErrMsg:
		m.pending = false
		m.status = ""
		m.err = msg.err
		var apiErr *client.APIError
		if errors.As(msg.err, &apiErr) {
			m.err = errors.New(apiErr.Message)
			if apiErr.SessionID != "" {
				m.sessionID = apiErr.SessionID
			}
		}

	case historyMsg:
		m.entries = m.entries[:0]
		for _, hm := range msg.h.Messages {
			m.entries = append(m.entries, entry{sender: hm.Sender, text: hm.Text})
		}
		m.status = fmt.Sprintf("Loaded %d messages", len(msg.h.Messages))
		m.refresh()

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m *model) toggleLoginField() {
	if m.loginStep == 0 {
		m.loginStep = 1
		m.username.Blur()
		m.password.Focus()
		return
	}
	m.loginStep = 0
	m.password.Blur()
	m.username.Focus()
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	}

	if m.state == stateLogin {
		return lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Sign in"),
			"",
			m.username.View(),
			m.password.View(),
			"",
			statusStyle.Render("Tab to switch fields, Enter to continue, Esc to quit."),
			errorView,
		)
	}

	title := "Support Chat"
	if m.user.Name != "" {
		title += " · " + m.user.Name
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		"",
		m.viewport.View(),
		statusStyle.Render(m.status),
		errorView,
		m.textarea.View(),
	)
}

// submit handles the chat box contents.
func (m model) submit() (model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" {
		return m, nil
	}
	m.textarea.Reset()

	switch v {
	case "/exit":
		return m, tea.Quit
	case "/new":
		m.sessionID = ""
		m.entries = nil
		m.status = "Started a new conversation"
		m.refresh()
		return m, nil
	case "/history":
		if m.sessionID == "" {
			m.status = "No conversation yet"
			return m, nil
		}
		return m, m.loadHistory()
	}

	m.entries = append(m.entries, entry{sender: domain.SenderUser, text: v})
	m.pending = true
	m.status = "Waiting for a reply..."
	m.refresh()

	backend, ctx, sessionID := m.backend, m.ctx, m.sessionID
	return m, func() tea.Msg {
		res, err := backend.SendMessage(ctx, v, sessionID)
		if err != nil {
			slog.Warn("Send failed", "error", err)
			return sendErrMsg{err}
		}
		return replyMsg{res}
	}
}

func (m model) login() tea.Cmd {
	backend, ctx := m.backend, m.ctx
	username, password := strings.TrimSpace(m.username.Value()), m.password.Value()
	return func() tea.Msg {
		u, _, err := backend.Login(ctx, username, password)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return errMsg{errors.New(apiErr.Message)}
			}
			return errMsg{err}
		}
		return loginMsg{user: u}
	}
}

func (m model) loadHistory() tea.Cmd {
	backend, ctx, id := m.backend, m.ctx, m.sessionID
	return func() tea.Msg {
		h, err := backend.GetHistory(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return historyMsg{h}
	}
}

func (m model) checkHealth() tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		return healthMsg(backend.CheckHealth(ctx))
	}
}

// refresh re-renders the transcript into the viewport.
func (m *model) refresh() {
	if len(m.entries) == 0 {
		return
	}
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m model) render() string {
	var sb strings.Builder
	for _, e := range m.entries {
		if e.sender == domain.SenderUser {
			sb.WriteString(userStyle.Render("You: "))
			sb.WriteString("\n")
			sb.WriteString(e.text)
			sb.WriteString("\n\n")
			continue
		}

		sb.WriteString(senderStyle.Render("Support: "))
		sb.WriteString("\n")
		content := e.text
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(e.text); err == nil {
				content = rendered
			}
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func waitForRetry(ch <-chan client.RetryEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return retryMsg(e)
	}
}

// Run starts the UI and blocks until the user quits.
func Run(ctx context.Context, backend Backend, opts Options) error {
	p := tea.NewProgram(newModel(ctx, backend, opts), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
