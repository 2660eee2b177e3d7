package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/agent"
	"github.com/KafClaw/agentcore/internal/approval"
	"github.com/KafClaw/agentcore/internal/audit"
	"github.com/KafClaw/agentcore/internal/bus"
	"github.com/KafClaw/agentcore/internal/config"
	"github.com/KafClaw/agentcore/internal/contextmgr"
	"github.com/KafClaw/agentcore/internal/policy"
	"github.com/KafClaw/agentcore/internal/provider"
	"github.com/KafClaw/agentcore/internal/session"
	"github.com/KafClaw/agentcore/internal/subagent"
	"github.com/KafClaw/agentcore/internal/tokens"
	"github.com/KafClaw/agentcore/internal/tools"
)

var (
	runMessage   string
	runSessionID string
	runFullAuto  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send a message through the governed agent loop",
	Run:   runAgent,
}

func init() {
	runCmd.Flags().StringVarP(&runMessage, "message", "m", "", "Message to send to the agent")
	runCmd.Flags().StringVarP(&runSessionID, "session", "s", "cli:default", "Session ID")
	runCmd.Flags().BoolVar(&runFullAuto, "full-auto", false, "Skip approval prompts for prompt-tier tools this run")
}

func runAgent(cmd *cobra.Command, args []string) {
	if runMessage == "" {
		fmt.Println("Error: --message is required")
		os.Exit(1)
	}

	printHeader("🤖 agentcore")

	cfg := loadConfig()
	dataDir, err := config.DataDir(cfg)
	if err != nil {
		fmt.Printf("Data dir error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Printf("Data dir error: %v\n", err)
		os.Exit(1)
	}

	creds := cfg.ProviderFor(cfg.Model.Provider)
	if creds.APIKey == "" {
		fmt.Println("Error: no API key configured (set ANTHROPIC_API_KEY or edit config.json)")
		os.Exit(1)
	}
	prov := provider.NewOpenAIProvider(creds.APIKey, creds.APIBase, cfg.Model.Name)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var store *audit.Store
	if cfg.Audit.Enabled {
		path := cfg.Audit.Path
		if path == "" {
			path = filepath.Join(dataDir, "audit.db")
		}
		if store, err = audit.Open(path); err != nil {
			fmt.Printf("Audit store warning: %v (continuing without audit)\n", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	eventBus := bus.New(cfg.Bus.Capacity, nil)
	go eventBus.Dispatch(ctx)
	if cfg.Bus.Kafka.Enabled {
		publisher, err := bus.NewKafkaPublisher(cfg.Bus.Kafka, nil)
		if err != nil {
			fmt.Printf("Kafka warning: %v (events stay local)\n", err)
		} else {
			publisher.Attach(ctx, eventBus)
			defer publisher.Close()
		}
	}

	workspace := cfg.Paths.Workspace
	workspaceGetter := func() string { return workspace }
	registry := tools.NewRegistry()
	registry.Register(tools.NewReadFileTool())
	registry.Register(tools.NewListFilesTool())
	registry.Register(tools.NewGrepFileTool())
	registry.Register(tools.NewWriteFileTool(workspaceGetter))
	registry.Register(tools.NewEditFileTool(workspaceGetter))
	registry.Register(tools.NewDeleteFileTool(workspaceGetter))
	registry.Register(tools.NewExecuteCodeTool(0, true, workspaceGetter))
	registry.Register(tools.NewWebFetchTool(nil))

	policyMgr := policy.NewManager(workspace, nil)
	recorder := approval.NewRecorder(dataDir, nil)

	var notifier approval.Notifier
	var cli *cliNotifier
	if cfg.Approval.Slack.Enabled {
		notifier = approval.NewSlackNotifier(cfg.Approval.Slack.Token, cfg.Approval.Slack.Channel)
	} else {
		cli = newCLINotifier()
		notifier = cli
	}
	gate := approval.NewGate(approval.GateOptions{
		Store:    store,
		Notifier: notifier,
		Timeout:  time.Duration(cfg.Approval.TimeoutSeconds) * time.Second,
	})
	if cli != nil {
		cli.gate = gate
	}

	contexts := contextmgr.NewManager(contextmgr.Options{
		Budget:    cfg.Budget,
		Trim:      cfg.Trim,
		Prune:     cfg.Prune,
		Estimator: tokens.NewTiktokenEstimator(),
		Emit: func(ev contextmgr.Event) {
			eventBus.Publish(bus.Event{
				Kind:      bus.KindContext,
				Type:      string(ev.Kind),
				SessionID: runSessionID,
			})
		},
	})

	executor := subagent.NewExecutor(subagent.ExecutorOptions{
		Provider:      prov,
		Tools:         registry,
		Store:         store,
		MaxDepth:      cfg.Subagents.MaxDepth,
		MaxIterations: cfg.Subagents.MaxIterations,
	})

	loop := agent.NewLoop(agent.Options{
		Config:       cfg,
		Provider:     prov,
		Registry:     registry,
		Policy:       policyMgr,
		Recorder:     recorder,
		Gate:         gate,
		Contexts:     contexts,
		Subagents:    executor,
		Sessions:     session.NewManager(filepath.Join(dataDir, "sessions")),
		Store:        store,
		Bus:          eventBus,
		SessionID:    runSessionID,
		SystemPrompt: systemPrompt(workspace),
	})
	if runFullAuto {
		policyMgr.EnableFullAuto(registry.Names())
		defer policyMgr.DisableFullAuto()
	}

	response, err := loop.Process(ctx, runMessage)
	if err != nil {
		fmt.Printf("Agent error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Println(response)
}

func systemPrompt(workspace string) string {
	return fmt.Sprintf(
		"You are agentcore, a coding agent working in %s. "+
			"Use the available tools to read, search and modify files, run commands "+
			"and dispatch sub-agents for focused tasks. Some tool calls need human "+
			"approval; a denied call is an answer, not an error to retry.", workspace)
}
