package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ agentcore Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 agentcore Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:   ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:   ✗ Not found (defaults apply, " + configPath + ")")
			}
		}

		cfg := loadConfig()
		if cfg.ProviderFor(cfg.Model.Provider).APIKey != "" {
			fmt.Println("API Key:  ✓ Found (" + cfg.Model.Provider + ")")
		} else {
			fmt.Println("API Key:  ✗ Not found")
		}
		fmt.Printf("Model:    %s\n", cfg.Model.Name)
		fmt.Printf("Window:   %d tokens (warn %.0f%%, alert %.0f%%)\n",
			cfg.Budget.MaxContextTokens,
			cfg.Budget.WarningThreshold*100, cfg.Budget.AlertThreshold*100)

		if dataDir, err := config.DataDir(cfg); err == nil {
			auditPath := cfg.Audit.Path
			if auditPath == "" {
				auditPath = filepath.Join(dataDir, "audit.db")
			}
			if _, statErr := os.Stat(auditPath); statErr == nil {
				fmt.Println("Audit:    ✓ " + auditPath)
			} else if cfg.Audit.Enabled {
				fmt.Println("Audit:    ✗ No database yet (" + auditPath + ")")
			} else {
				fmt.Println("Audit:    ✗ Disabled")
			}
		}

		if cfg.Bus.Kafka.Enabled {
			fmt.Printf("Kafka:    ✓ Enabled (%v -> %s)\n", cfg.Bus.Kafka.Brokers, cfg.Bus.Kafka.Topic)
		} else {
			fmt.Println("Kafka:    ✗ Disabled")
		}
		if cfg.Approval.Slack.Enabled {
			fmt.Println("Approvals: Slack channel " + cfg.Approval.Slack.Channel)
		} else {
			fmt.Println("Approvals: terminal prompt")
		}
		fmt.Println("Status:   Ready")
	},
}
