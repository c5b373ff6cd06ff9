package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/mcpchat-go/internal/chat"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
	"github.com/spf13/cobra"
)

var (
	askSession    string
	askNew        bool
	askOutputFile string
	historyLimit  int
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the answer",
	Long: `Send a message to the selected chat session and print the answer as
rendered markdown.

Without a selected session the same policy as the chat view applies: the
first chat of a terminal session gets a fresh session, later ones continue
the most recent.

Examples:
  mcpchat ask "Summarise my open GitHub issues"
  mcpchat ask --new "Plan next week's sprint"
  mcpchat ask --session sess-42 "And the Jira tickets?"
  mcpchat ask "Draft release notes" -o notes.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Print the transcript of a session",
	Long: `Print the transcript of a session. Defaults to the selected session.
Reading another session does not change the selection.

Examples:
  mcpchat history
  mcpchat history sess-42 -n 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session to use instead of the selected one")
	askCmd.Flags().BoolVar(&askNew, "new", false, "start a new chat first")
	askCmd.Flags().StringVarP(&askOutputFile, "output", "o", "", "write the raw markdown answer to file")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "only print the last n messages")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	message := strings.Join(args, " ")
	ctx := context.Background()
	ctrl := getChat(nil)

	var err error
	switch {
	case askNew:
		_, err = ctrl.NewChat(ctx)
	case askSession != "":
		err = ctrl.SelectSession(ctx, askSession)
	default:
		err = ctrl.Bootstrap(ctx)
	}
	if err != nil {
		return err
	}

	if err := ctrl.Send(ctx, message); err != nil {
		return err
	}

	reply, ok := lastBotMessage(ctrl.Messages())
	if !ok {
		return fmt.Errorf("no answer received")
	}

	if askOutputFile != "" {
		if err := os.WriteFile(askOutputFile, []byte(reply.Content+"\n"), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("Answer written to %s\n", askOutputFile)
		return nil
	}

	md := newMarkdown(cfg.MarkdownStyle, 0)
	fmt.Print(md.render(reply.Content))
	return nil
}

// lastBotMessage returns the answer to the message just sent. Send always
// ends the transcript with a bot message: the reply or an error text.
func lastBotMessage(msgs []chat.Message) (chat.Message, bool) {
	if len(msgs) == 0 {
		return chat.Message{}, false
	}
	last := msgs[len(msgs)-1]
	return last, last.Sender == chat.SenderBot && !last.IsWelcome()
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctx := context.Background()
	ctrl := getChat(nil)

	id := ""
	if len(args) == 1 {
		id = args[0]
	} else if selected, ok := localStore.Get(store.KeySelectedSessionID); ok {
		id = selected
	}
	if id == "" {
		return chat.ErrNoSession
	}

	msgs, err := ctrl.ReadHistory(ctx, id)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}
	if historyLimit > 0 && len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	printTranscript(os.Stdout, newMarkdown(cfg.MarkdownStyle, 0), msgs)
	return nil
}
