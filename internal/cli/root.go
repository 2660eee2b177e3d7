package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/agentcore/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"                        _                      \n" +
		"   __ _  __ _  ___ _ __ | |_ ___ ___  _ __ ___ \n" +
		"  / _` |/ _` |/ _ \\ '_ \\| __/ __/ _ \\| '__/ _ \\\n" +
		" | (_| | (_| |  __/ | | | || (_| (_) | | |  __/\n" +
		"  \\__,_|\\__, |\\___|_| |_|\\__\\___\\___/|_|  \\___|\n" +
		"        |___/                                  \n"
)

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "agentcore - governed coding agent",
	Long:  color.CyanString(logo) + "\nA coding agent core with token budgeting, tool policy and human approval gates.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(eventsCmd)
}

// loadConfig loads configuration, falling back to defaults on any error.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return cfg
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
