package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/mcpchat-go/internal/auth"
	"github.com/spf13/cobra"
)

var (
	loginUser    string
	signupEmail  string
	accountForce bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store an access token",
	Long: `Log in with your username and password. The access token is stored in
the local state file and sent with every request.

Examples:
  mcpchat login
  mcpchat login -u alice`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account. Passwords need at least 8 characters including a
letter, a digit and one of !@#$%^&*(),.?":{}|<>.

Examples:
  mcpchat signup -u alice --email alice@example.com`,
	Args: cobra.NoArgs,
	RunE: runSignup,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear local state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		authService.Logout(context.Background())
		fmt.Println("Logged out.")
		return nil
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage your account",
}

var accountPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change your password",
	Args:  cobra.NoArgs,
	RunE:  runPasswd,
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete your account",
	Long: `Delete your account and clear local state.
Requires confirmation unless --force is used.`,
	Args: cobra.NoArgs,
	RunE: runAccountDelete,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "username")
	signupCmd.Flags().StringVarP(&loginUser, "username", "u", "", "username")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "email address")
	accountDeleteCmd.Flags().BoolVarP(&accountForce, "force", "f", false, "skip confirmation")

	accountCmd.AddCommand(accountPasswdCmd)
	accountCmd.AddCommand(accountDeleteCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	nav.SetLoginScreen(true)

	username := loginUser
	if username == "" {
		var err error
		if username, err = promptLine("Username: "); err != nil {
			return err
		}
	}
	password, err := promptSecret("Password: ")
	if err != nil {
		return err
	}

	if err := authService.Login(context.Background(), username, password); err != nil {
		return err
	}
	fmt.Println(defaultTheme.successStyle().Render("✓ Logged in as " + strings.TrimSpace(username)))
	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	in := auth.SignupInput{Username: loginUser, Email: signupEmail}

	var err error
	if in.Username == "" {
		if in.Username, err = promptLine("Username: "); err != nil {
			return err
		}
	}
	if in.Email == "" {
		if in.Email, err = promptLine("Email: "); err != nil {
			return err
		}
	}
	if in.Password, err = promptSecret("Password: "); err != nil {
		return err
	}
	again, err := promptSecret("Confirm password: ")
	if err != nil {
		return err
	}
	if again != in.Password {
		return auth.ErrPasswordMismatch
	}

	user, err := authService.Signup(context.Background(), in)
	if err != nil {
		return err
	}
	fmt.Println(defaultTheme.successStyle().Render("✓ Account created: " + user.Username))
	fmt.Println("Run 'mcpchat login' to sign in.")
	return nil
}

func runPasswd(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	current, err := promptSecret("Current password: ")
	if err != nil {
		return err
	}
	next, err := promptSecret("New password: ")
	if err != nil {
		return err
	}
	again, err := promptSecret("Confirm new password: ")
	if err != nil {
		return err
	}

	if err := authService.ChangePassword(context.Background(), current, next, again); err != nil {
		return err
	}
	fmt.Println(defaultTheme.successStyle().Render("✓ Password changed"))
	return nil
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	if !accountForce {
		fmt.Println("About to delete your account. This cannot be undone.")
		if !confirm("\nContinue?") {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := authService.DeleteAccount(context.Background()); err != nil {
		return err
	}
	fmt.Println("Account deleted.")
	return nil
}
