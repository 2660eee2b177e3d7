package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/approval"
	"github.com/KafClaw/agentcore/internal/config"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and edit learned approval patterns",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned per-tool approval statistics",
	Run: func(cmd *cobra.Command, args []string) {
		rec := openRecorder()
		patterns := rec.AllPatterns()
		if len(patterns) == 0 {
			fmt.Println("No approval history yet.")
			return
		}
		cfg := rec.Config()
		for _, p := range patterns {
			rate := fmt.Sprintf("%.0f%%", p.ApprovalRate()*100)
			if p.ApprovalRate() >= cfg.ApprovalThreshold {
				rate = color.GreenString(rate)
			}
			marker := ""
			if p.AlwaysAllow {
				marker = color.GreenString("  [always-allow]")
			} else if rec.ShouldAutoApprove(p.ToolName) {
				marker = color.CyanString("  [auto-approves]")
			}
			fmt.Printf("%-24s %3d requests  %d approved / %d denied  %s%s\n",
				p.ToolName, p.TotalRequests, p.Approvals, p.Denials, rate, marker)
		}
	},
}

var patternsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget all learned approval patterns",
	Run: func(cmd *cobra.Command, args []string) {
		rec := openRecorder()
		if err := rec.ResetPatterns(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Patterns cleared.")
	},
}

var patternsAlwaysAllowCmd = &cobra.Command{
	Use:   "always-allow <tool>",
	Short: "Mark a tool as always allowed, skipping the gate",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec := openRecorder()
		if err := rec.AddAlwaysAllow(args[0]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s is now always allowed.\n", args[0])
	},
}

var patternsRevokeCmd = &cobra.Command{
	Use:   "revoke <tool>",
	Short: "Remove a tool's always-allow marker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec := openRecorder()
		if err := rec.RemoveAlwaysAllow(args[0]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s goes back through the gate.\n", args[0])
	},
}

func init() {
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsResetCmd)
	patternsCmd.AddCommand(patternsAlwaysAllowCmd)
	patternsCmd.AddCommand(patternsRevokeCmd)
}

func openRecorder() *approval.Recorder {
	cfg := loadConfig()
	dataDir, err := config.DataDir(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return approval.NewRecorder(dataDir, nil)
}
