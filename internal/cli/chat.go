package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/mcpchat-go/internal/chat"
	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/config"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat view",
	Long: `Open the interactive chat view.

Type a message and press Enter to send it. Commands:
  /new            start a new chat
  /sessions       list sessions
  /use <n|id>     switch to a session
  /rename <name>  rename the current session
  /delete         delete the current session (asks first)
  /quit           leave (Ctrl+C works too)`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// transcriptMsg signals that the controller state changed.
type transcriptMsg struct{}

// opDoneMsg carries the result of a controller call.
type opDoneMsg struct {
	info string
	err  error
}

// chatModel is the bubbletea model for the chat view.
type chatModel struct {
	ctrl  *chat.Controller
	input textinput.Model
	md    markdown
	theme Theme

	width         int
	status        string
	statusErr     bool
	pendingDelete string
	quitting      bool
}

func newChatModel(ctrl *chat.Controller) chatModel {
	in := textinput.New()
	in.Placeholder = "메시지를 입력하세요..."
	in.CharLimit = 4000
	in.Focus()

	return chatModel{
		ctrl:  ctrl,
		input: in,
		md:    newMarkdown(cfg.MarkdownStyle, 0),
		theme: defaultTheme,
	}
}

// Init bootstraps the session in the background.
func (m chatModel) Init() tea.Cmd {
	return m.run(func(ctx context.Context) (string, error) {
		return "", m.ctrl.Bootstrap(ctx)
	})
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(max(msg.Width-4, 10))
		m.md = newMarkdown(cfg.MarkdownStyle, min(max(msg.Width-2, 40), 120))
		return m, nil

	case tea.KeyPressMsg:
		if m.pendingDelete != "" {
			return m.answerDelete(msg.String())
		}
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case transcriptMsg:
		return m, nil

	case opDoneMsg:
		m.setStatus(msg.info, msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) setStatus(info string, err error) {
	m.statusErr = err != nil
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = info
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if !strings.HasPrefix(text, "/") {
		m.status = ""
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", m.ctrl.Send(ctx, text)
		})
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "q":
		m.quitting = true
		return m, tea.Quit

	case "new":
		return m, m.run(func(ctx context.Context) (string, error) {
			id, err := m.ctrl.NewChat(ctx)
			return "새 대화: " + id, err
		})

	case "sessions":
		return m, m.run(func(ctx context.Context) (string, error) {
			return formatSessionList(m.ctrl.Directory().List(ctx), m.ctrl.SessionID()), nil
		})

	case "use":
		return m, m.run(func(ctx context.Context) (string, error) {
			id := m.resolveSession(arg)
			if id == "" {
				return "", fmt.Errorf("unknown session %q", arg)
			}
			return "", m.ctrl.SelectSession(ctx, id)
		})

	case "rename":
		id := m.ctrl.SessionID()
		if id == "" {
			m.setStatus("", chat.ErrNoSession)
			return m, nil
		}
		return m, m.run(func(ctx context.Context) (string, error) {
			return "이름을 변경했습니다", m.ctrl.RenameSession(ctx, id, arg)
		})

	case "delete":
		id := m.ctrl.SessionID()
		if id == "" {
			m.setStatus("", chat.ErrNoSession)
			return m, nil
		}
		m.pendingDelete = id
		m.status = "현재 대화를 삭제하시겠습니까? (y/N)"
		m.statusErr = false
		return m, nil
	}

	m.setStatus("", fmt.Errorf("unknown command /%s", name))
	return m, nil
}

func (m chatModel) answerDelete(key string) (tea.Model, tea.Cmd) {
	id := m.pendingDelete
	m.pendingDelete = ""
	yes := key == "y" || key == "Y"

	return m, m.run(func(ctx context.Context) (string, error) {
		deleted, err := m.ctrl.DeleteSession(ctx, id, chat.ConfirmFunc(func(string) bool { return yes }))
		if err != nil || !deleted {
			return "취소했습니다", err
		}
		return "삭제했습니다", nil
	})
}

// resolveSession maps a 1-based list position or an id to a session id.
func (m chatModel) resolveSession(arg string) string {
	sessions := m.ctrl.Sessions()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1].SessionID
	}
	if _, ok := m.ctrl.Directory().Find(arg); ok {
		return arg
	}
	return ""
}

// run executes f off the update loop.
func (m chatModel) run(f func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		info, err := f(context.Background())
		if errors.Is(err, chat.ErrEmptyMessage) {
			err = nil
		}
		return opDoneMsg{info: info, err: err}
	}
}

// View renders the chat display.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("대화를 종료합니다.") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	for _, msg := range m.ctrl.Messages() {
		b.WriteString(renderMessage(m.md, m.theme, msg))
		b.WriteString("\n")
	}

	switch m.ctrl.State() {
	case chat.StateSending:
		b.WriteString(m.theme.hintStyle().Render("응답을 기다리는 중..."))
		b.WriteString("\n")
	case chat.StateError:
		b.WriteString(m.theme.errorStyle().Render("대화 기록을 불러오지 못했습니다: " + errText(m.ctrl.LastError())))
		b.WriteString("\n")
	}

	if m.status != "" {
		style := m.theme.hintStyle()
		if m.statusErr {
			style = m.theme.errorStyle()
		}
		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("Enter to send · /new /sessions /use /rename /delete · Esc to quit"))
	return b.String()
}

func (m chatModel) header() string {
	id := m.ctrl.SessionID()
	if id == "" {
		return m.theme.botStyle().Render("mcpchat") + " " + m.theme.hintStyle().Render("(선택된 대화 없음)")
	}
	name := chat.DefaultSessionName
	if s, ok := m.ctrl.Directory().Find(id); ok && s.SessionName != "" {
		name = s.SessionName
	}
	return m.theme.botStyle().Render("mcpchat") + " · " + name + " " + m.theme.hintStyle().Render(id)
}

func formatSessionList(sessions []client.Session, current string) string {
	if len(sessions) == 0 {
		return "대화가 없습니다. /new 로 시작하세요."
	}
	var b strings.Builder
	for i, s := range sessions {
		mark := " "
		if s.SessionID == current {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %d. %s (%d)\n", mark, i+1, s.SessionName, s.MessageCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}

	var p *tea.Program
	ctrl := getChat(func() {
		if p != nil {
			p.Send(transcriptMsg{})
		}
	})

	// The view owns the terminal; warnings still reach the log file.
	config.Stderr.Mute(true)
	defer config.Stderr.Mute(false)

	p = tea.NewProgram(newChatModel(ctrl))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
