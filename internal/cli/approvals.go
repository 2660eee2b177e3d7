package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/approval"
	"github.com/KafClaw/agentcore/internal/audit"
	"github.com/KafClaw/agentcore/internal/config"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect the approval audit trail",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval requests still marked pending",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		pending, err := store.PendingApprovals()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(pending) == 0 {
			fmt.Println("No pending approvals.")
			return
		}
		for _, rec := range pending {
			fmt.Printf("%s  %s  risk=%s  %s\n",
				rec.ApprovalID, color.YellowString(rec.Tool), rec.RiskLevel,
				rec.CreatedAt.Format("2006-01-02 15:04:05"))
			if rec.ArgsJSON != "" {
				fmt.Printf("    %s\n", rec.ArgsJSON)
			}
		}
	},
}

var approvalsHistoryCmd = &cobra.Command{
	Use:   "history <tool>",
	Short: "Show recent approval decisions for a tool",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		records, err := store.ApprovalsForTool(args[0], 20)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No decisions recorded.")
			return
		}
		for _, rec := range records {
			status := rec.Status
			switch status {
			case approval.StatusApproved:
				status = color.GreenString(status)
			case approval.StatusDenied, approval.StatusTimeout:
				status = color.RedString(status)
			}
			fmt.Printf("%s  %s  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Tool, status)
		}
	},
}

var approvalsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark all pending approvals as timed out",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		pending, err := store.PendingApprovals()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		for _, rec := range pending {
			if err := store.ResolveApproval(rec.ApprovalID, approval.StatusTimeout); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Printf("Expired %d pending approvals.\n", len(pending))
	},
}

func init() {
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsHistoryCmd)
	approvalsCmd.AddCommand(approvalsExpireCmd)
}

func openStore() *audit.Store {
	cfg := loadConfig()
	dataDir, err := config.DataDir(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	path := cfg.Audit.Path
	if path == "" {
		path = filepath.Join(dataDir, "audit.db")
	}
	store, err := audit.Open(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return store
}
