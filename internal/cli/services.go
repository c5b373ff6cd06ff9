package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/mcpchat-go/internal/mcp"
	"github.com/spf13/cobra"
)

var (
	serviceSet    []string
	serviceSelect bool
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List and configure MCP integrations",
	Long: `List and configure the MCP integrations the agent may use.

A service with required environment variables can only be selected once
every variable has a value.

Subcommands:
  list        List services (default)
  configure   Set a service's environment variables
  toggle      Select or deselect a service

Examples:
  mcpchat services
  mcpchat services configure github --set GITHUB_TOKEN=ghp_xxx --select
  mcpchat services toggle github`,
	Args: cobra.NoArgs,
	RunE: runServicesList,
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List services",
	Args:  cobra.NoArgs,
	RunE:  runServicesList,
}

var servicesConfigureCmd = &cobra.Command{
	Use:   "configure <service-id>",
	Short: "Set a service's environment variables",
	Long: `Set a service's environment variables.

Values given with --set are used as is. Without --set each variable is
prompted for; an empty answer keeps the stored value.`,
	Args: cobra.ExactArgs(1),
	RunE: runServicesConfigure,
}

var servicesToggleCmd = &cobra.Command{
	Use:   "toggle <service-id>",
	Short: "Select or deselect a service",
	Args:  cobra.ExactArgs(1),
	RunE:  runServicesToggle,
}

var podCmd = &cobra.Command{
	Use:   "pod",
	Short: "Provision the agent runtime",
}

var podCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an agent pod with the selected services",
	Long: `Create an agent pod with the selected services.

Every selected service must have all of its environment variables set.`,
	Args: cobra.NoArgs,
	RunE: runPodCreate,
}

func init() {
	servicesConfigureCmd.Flags().StringArrayVar(&serviceSet, "set", nil, "set a variable (KEY=VALUE, repeatable)")
	servicesConfigureCmd.Flags().BoolVar(&serviceSelect, "select", false, "select the service after saving")

	servicesCmd.AddCommand(servicesListCmd)
	servicesCmd.AddCommand(servicesConfigureCmd)
	servicesCmd.AddCommand(servicesToggleCmd)

	podCmd.AddCommand(podCreateCmd)
}

func runServicesList(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}

	services, err := mcpCtrl.LoadServices(context.Background())
	if err != nil {
		return err
	}
	if len(services) == 0 {
		fmt.Println("No services available.")
		return nil
	}

	fmt.Printf("Services (%d):\n\n", len(services))
	for _, s := range services {
		printService(s)
	}
	return nil
}

func printService(s mcp.Service) {
	mark := " "
	if s.IsSelected {
		mark = "*"
	}
	status := defaultTheme.successStyle().Render("ready")
	if !s.Active {
		status = defaultTheme.hintStyle().Render("needs configuration")
	}
	fmt.Printf("%s %-20s %s  [%s]\n", mark, s.ID, s.Name, status)
	if s.Description != "" {
		fmt.Printf("    %s\n", s.Description)
	}
	if len(s.RequiredEnvVars) > 0 {
		fmt.Printf("    env: %s\n", strings.Join(s.Keys(), ", "))
	}
}

func runServicesConfigure(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := mcpCtrl.LoadServices(ctx); err != nil {
		return err
	}
	form, err := mcpCtrl.OpenConfiguration(ctx, args[0])
	if err != nil {
		return err
	}
	if len(form.Vars) == 0 {
		fmt.Printf("%s has no environment variables.\n", form.ServiceName)
		return nil
	}

	values, err := serviceValues(form, serviceSet)
	if err != nil {
		return err
	}
	return saveServiceForm(ctx, form, values, serviceSelect)
}

// serviceValues merges --set assignments into the stored values, prompting
// for each variable when none were given.
func serviceValues(form *mcp.Form, assignments []string) (map[string]string, error) {
	values := form.Values()
	if len(assignments) > 0 {
		for _, a := range assignments {
			key, value, ok := strings.Cut(a, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid assignment %q, expected KEY=VALUE", a)
			}
			if _, known := values[key]; !known {
				return nil, fmt.Errorf("%s does not use %s (expected one of: %s)",
					form.ServiceName, key, strings.Join(keysOf(form), ", "))
			}
			values[key] = value
		}
		return values, nil
	}

	if form.Message != "" {
		fmt.Println(defaultTheme.errorStyle().Render(form.Message))
	}
	fmt.Printf("Configure %s (leave empty to keep the current value)\n", form.ServiceName)
	for _, v := range form.Vars {
		label := v.Key + ": "
		if v.Value != "" {
			label = v.Key + " [set]: "
		}
		answer, err := promptSecret(label)
		if err != nil {
			return nil, err
		}
		if answer != "" {
			values[v.Key] = answer
		}
	}
	return values, nil
}

func keysOf(form *mcp.Form) []string {
	keys := make([]string, len(form.Vars))
	for i, v := range form.Vars {
		keys[i] = v.Key
	}
	return keys
}

func saveServiceForm(ctx context.Context, form *mcp.Form, values map[string]string, selectAfter bool) error {
	svc, err := mcpCtrl.SaveConfiguration(ctx, form.ServiceID, values, selectAfter)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s.\n", svc.Name)
	if selectAfter && svc.IsSelected {
		fmt.Printf("Selected %s.\n", svc.Name)
	}
	return nil
}

func runServicesToggle(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := mcpCtrl.LoadServices(ctx); err != nil {
		return err
	}

	svc, err := mcpCtrl.ToggleSelection(ctx, args[0])
	var incomplete *mcp.IncompleteError
	if errors.As(err, &incomplete) && incomplete.Form != nil {
		if !isInteractive() {
			return fmt.Errorf("%w\nrun 'mcpchat services configure %s --select'", err, args[0])
		}
		values, err := serviceValues(incomplete.Form, nil)
		if err != nil {
			return err
		}
		return saveServiceForm(ctx, incomplete.Form, values, true)
	}
	if err != nil {
		return err
	}

	if svc.IsSelected {
		fmt.Printf("Selected %s.\n", svc.Name)
	} else {
		fmt.Printf("Deselected %s.\n", svc.Name)
	}
	return nil
}

func runPodCreate(cmd *cobra.Command, args []string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := mcpCtrl.LoadServices(ctx); err != nil {
		return err
	}

	res, err := mcpCtrl.CreatePod(ctx)
	if err != nil {
		return err
	}

	if res.PodName != nil {
		fmt.Printf("%s %s\n", defaultTheme.successStyle().Render("Pod:"), *res.PodName)
	}
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	if !res.Success {
		return fmt.Errorf("pod creation failed")
	}
	return nil
}
