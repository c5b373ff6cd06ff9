// Package cli provides the command-line interface for mcpchat.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/mcpchat-go/internal/auth"
	"github.com/raphaelgruber/mcpchat-go/internal/chat"
	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/config"
	"github.com/raphaelgruber/mcpchat-go/internal/mcp"
	"github.com/raphaelgruber/mcpchat-go/internal/metrics"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	envFile string

	// Global config and backend wiring
	cfg       config.Config
	logger    = slog.Default()
	closeLog  func() error
	collector *metrics.Collector
	nav       *navigator

	localStore   *store.FileStore
	sessionStore *store.FileStore
	apiClient    *client.Client

	authService *auth.Service
	mcpCtrl     *mcp.Controller

	// Lazy-initialized chat controller
	chatCtrl *chat.Controller
)

// errNotLoggedIn is returned by commands that need a stored token.
var errNotLoggedIn = errors.New("로그인이 필요합니다. 'mcpchat login'을 먼저 실행하세요")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcpchat",
	Short: "Chat with an AI agent backed by your MCP integrations",
	Long: `mcpchat is a terminal client for the MCP chat service.

Log in, choose which integrations (GitHub, Notion, Jira, maps, ...) the agent
may use, configure their credentials, and chat across multiple sessions with
markdown-rendered answers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip wiring for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg = config.Load()
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		var err error
		localStore, err = store.OpenFile(cfg.StateFile)
		if err != nil {
			return fmt.Errorf("open local state: %w", err)
		}
		sessionStore, err = store.OpenFile(cfg.SessionFile())
		if err != nil {
			return fmt.Errorf("open session state: %w", err)
		}

		collector = metrics.NewCollector()
		nav = &navigator{}
		apiClient = client.New(cfg.APIURL, localStore,
			client.WithTimeout(cfg.ClientTimeout),
			client.WithNavigator(nav),
			client.WithCollector(collector),
			client.WithLogger(logger),
		)

		authService = auth.NewService(apiClient, localStore, nav, logger)
		mcpCtrl = mcp.NewController(apiClient, localStore,
			mcp.WithLogger(logger),
			mcp.WithPodPolicy(mcp.PodPolicy{AllowEmpty: cfg.PodAllowEmpty}),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if chatCtrl != nil {
			chatCtrl.Close()
		}
		if verbose && collector != nil {
			printRequestStats(collector.Snapshot())
		}
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// navigator tracks whether the user is on the login flow. A rejected token
// outside of it asks the user to log in again.
type navigator struct {
	onLogin    bool
	redirected bool
}

func (n *navigator) OnLoginScreen() bool    { return n.onLogin }
func (n *navigator) SetLoginScreen(on bool) { n.onLogin = on }

func (n *navigator) RedirectToLogin() {
	n.onLogin = true
	if n.redirected {
		return
	}
	n.redirected = true
	fmt.Fprintln(config.Stderr, defaultTheme.errorStyle().Render(
		"로그인이 만료되었습니다. 'mcpchat login'으로 다시 로그인하세요."))
}

// requireLogin fails fast when no token is stored.
func requireLogin() error {
	if !authService.LoggedIn() {
		return errNotLoggedIn
	}
	return nil
}

// getChat creates the chat controller on first use. onChange is only
// honored by the first caller.
func getChat(onChange func()) *chat.Controller {
	if chatCtrl == nil {
		chatCtrl = chat.NewController(chat.Dependencies{
			API:        apiClient,
			Store:      localStore,
			Cache:      chat.NewTranscriptCache(localStore, cfg.CacheDebounce, logger),
			AppSession: chat.NewAppSession(sessionStore),
			Logger:     logger,
			OnChange:   onChange,
		})
	}
	return chatCtrl
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "load environment from this file if it exists")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(podCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcpchat %s\n", Version)
	},
}
