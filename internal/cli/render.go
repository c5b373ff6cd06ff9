package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/mcpchat-go/internal/chat"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	User    lipgloss.Color
	Bot     lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:    lipgloss.Color("#AF87FF"), // purple
	Bot:     lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) botStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Bot).Bold(true)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// markdown renders bot messages. It falls back to plain text when the
// renderer cannot be built or fails on a message.
type markdown struct {
	r *glamour.TermRenderer
}

func newMarkdown(style string, width int) markdown {
	opt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		opt = glamour.WithStandardStyle(style)
	}
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
	if err != nil {
		logger.Warn("markdown renderer unavailable", "style", style, "error", err)
		return markdown{}
	}
	return markdown{r: r}
}

func (m markdown) render(text string) string {
	if m.r == nil {
		return text + "\n"
	}
	out, err := m.r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// renderMessage formats one transcript entry.
func renderMessage(md markdown, theme Theme, msg chat.Message) string {
	if msg.Sender == chat.SenderUser {
		return fmt.Sprintf("%s %s\n", theme.userStyle().Render("You ›"), msg.Content)
	}
	body := strings.TrimRight(md.render(msg.Content), "\n")
	return fmt.Sprintf("%s\n%s\n", theme.botStyle().Render("Bot ›"), body)
}

func printTranscript(w io.Writer, md markdown, msgs []chat.Message) {
	for _, msg := range msgs {
		fmt.Fprint(w, renderMessage(md, defaultTheme, msg))
	}
}
