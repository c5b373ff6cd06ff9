package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/mcpchat-go/internal/chat"
	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
	"github.com/spf13/cobra"
)

var sessionsForce bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage chat sessions",
	Long: `List and manage your chat sessions.

Subcommands:
  list      List sessions (default)
  new       Start a new chat (reuses an empty session if one exists)
  use       Select the session used by 'ask' and 'chat'
  rename    Rename a session
  delete    Delete a session

Examples:
  mcpchat sessions
  mcpchat sessions new
  mcpchat sessions use sess-42
  mcpchat sessions rename sess-42 "Release planning"
  mcpchat sessions delete sess-42 --force`,
	Args: cobra.NoArgs,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new chat",
	Args:  cobra.NoArgs,
	RunE:  runSessionsNew,
}

var sessionsUseCmd = &cobra.Command{
	Use:   "use <session-id>",
	Short: "Select a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsUse,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <name>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionsRename,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Long: `Delete a session and its history.
Requires confirmation unless --force is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsDelete,
}

func init() {
	sessionsDeleteCmd.Flags().BoolVarP(&sessionsForce, "force", "f", false, "skip confirmation")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsUseCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctx := context.Background()

	sessions, err := apiClient.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found. Start one with 'mcpchat sessions new'.")
		return nil
	}

	selected, _ := localStore.Get(store.KeySelectedSessionID)
	fmt.Printf("Sessions (%d):\n\n", len(sessions))
	for _, s := range sessions {
		printSession(s, s.SessionID == selected)
	}
	return nil
}

func printSession(s client.Session, selected bool) {
	mark := " "
	if selected {
		mark = "*"
	}
	name := s.SessionName
	if name == "" {
		name = chat.DefaultSessionName
	}
	fmt.Printf("%s %s  %s (%d messages)\n", mark, s.SessionID, name, s.MessageCount)
	if verbose && !s.UpdatedAt.IsZero() {
		fmt.Printf("    updated %s\n", s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctrl := getChat(nil)

	id, err := ctrl.NewChat(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Selected session %s\n", id)
	return nil
}

func runSessionsUse(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctrl := getChat(nil)

	if err := ctrl.SelectSession(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Selected session %s (%d messages)\n", args[0], countExchanges(ctrl.Messages()))
	return nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	name := strings.TrimSpace(args[1])
	if name == "" {
		fmt.Println("Name is empty; nothing changed.")
		return nil
	}

	if err := getChat(nil).RenameSession(context.Background(), args[0], name); err != nil {
		return err
	}
	fmt.Printf("Renamed %s to %q\n", args[0], name)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctx := context.Background()
	ctrl := getChat(nil)

	// Populate names for the confirmation prompt.
	ctrl.Directory().List(ctx)

	var confirmer chat.Confirmer = chat.ConfirmFunc(confirm)
	if sessionsForce {
		confirmer = chat.ConfirmFunc(func(string) bool { return true })
	}

	deleted, err := ctrl.DeleteSession(ctx, args[0], confirmer)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Println("Cancelled.")
		return nil
	}
	fmt.Printf("Deleted: %s\n", args[0])
	return nil
}

// countExchanges counts user messages in a transcript.
func countExchanges(msgs []chat.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Sender == chat.SenderUser {
			n++
		}
	}
	return n
}
