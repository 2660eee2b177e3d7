package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show and edit the tool policy",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective policy for every known tool",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := openPolicy()
		cfg := mgr.Config()

		tools := make([]string, 0, len(cfg.Policies))
		for tool := range cfg.Policies {
			tools = append(tools, tool)
		}
		sort.Strings(tools)

		fmt.Printf("Default: %s\n\n", policyColored(cfg.DefaultPolicy))
		for _, tool := range tools {
			fmt.Printf("%-24s %s", tool, policyColored(cfg.Policies[tool]))
			if _, ok := cfg.Constraints[tool]; ok {
				fmt.Print("  (constrained)")
			}
			fmt.Println()
		}
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <tool> <allow|prompt|deny>",
	Short: "Set one tool's policy",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		pol := policy.Policy(args[1])
		switch pol {
		case policy.Allow, policy.Prompt, policy.Deny:
		default:
			fmt.Printf("Error: unknown policy %q (want allow, prompt or deny)\n", args[1])
			os.Exit(1)
		}
		mgr := openPolicy()
		if err := mgr.SetPolicy(args[0], pol); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s\n", args[0], policyColored(pol))
	},
}

var policyAllowAllCmd = &cobra.Command{
	Use:   "allow-all",
	Short: "Set every known tool to allow",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := openPolicy()
		if err := mgr.AllowAll(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("All tools set to " + policyColored(policy.Allow) + ".")
	},
}

var policyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear per-tool overrides and restore the prompt default",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := openPolicy()
		if err := mgr.ResetToPrompt(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Policy reset; every tool now prompts.")
	},
}

func init() {
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyAllowAllCmd)
	policyCmd.AddCommand(policyResetCmd)
}

func openPolicy() *policy.Manager {
	cfg := loadConfig()
	return policy.NewManager(cfg.Paths.Workspace, nil)
}

func policyColored(pol policy.Policy) string {
	switch pol {
	case policy.Allow:
		return color.GreenString(string(pol))
	case policy.Deny:
		return color.RedString(string(pol))
	default:
		return color.YellowString(string(pol))
	}
}
