package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/agentcore/internal/audit"
	"github.com/KafClaw/agentcore/internal/provider"
	"github.com/KafClaw/agentcore/internal/tools"
)

var (
	// ErrUnknownAgent is returned for a dispatch to an unregistered agent.
	ErrUnknownAgent = errors.New("unknown sub-agent")
	// ErrDepthExceeded is returned when a spawn would go past MaxAgentDepth.
	ErrDepthExceeded = errors.New("sub-agent depth exceeded")
)

// EventKind identifies a sub-agent lifecycle event.
type EventKind string

const (
	EventStarted   EventKind = "subagent_started"
	EventCompleted EventKind = "subagent_completed"
	EventFailed    EventKind = "subagent_failed"
)

// Event reports sub-agent lifecycle progress.
type Event struct {
	Kind    EventKind `json:"kind"`
	RunID   string    `json:"run_id"`
	AgentID string    `json:"agent_id"`
	Depth   int       `json:"depth"`
	Error   string    `json:"error,omitempty"`
}

// Result is the outcome of one sub-agent run.
type Result struct {
	RunID         string   `json:"run_id"`
	AgentID       string   `json:"agent_id"`
	Response      string   `json:"response"`
	Success       bool     `json:"success"`
	DurationMS    int64    `json:"duration_ms"`
	Iterations    int      `json:"iterations"`
	FilesModified []string `json:"files_modified,omitempty"`
}

// writeTools are the tool names whose path argument counts as a modified file.
var writeTools = map[string]bool{
	"write_file":  true,
	"create_file": true,
	"edit_file":   true,
	"apply_patch": true,
	"delete_file": true,
}

// Executor runs sub-agents against a provider and tool registry.
type Executor struct {
	registry *Registry
	provider provider.LLMProvider
	tools    *tools.Registry
	store    *audit.Store
	logger   *slog.Logger
	emit     func(Event)
	maxDepth int
	maxIters int
}

// ExecutorOptions configures an Executor. Store and Emit may be nil.
type ExecutorOptions struct {
	Registry *Registry
	Provider provider.LLMProvider
	Tools    *tools.Registry
	Store    *audit.Store
	Logger   *slog.Logger
	Emit     func(Event)
	// MaxDepth overrides MaxAgentDepth when positive.
	MaxDepth int
	// MaxIterations, when positive, caps every agent's iteration budget.
	MaxIterations int
}

// NewExecutor creates an executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = MaxAgentDepth
	}
	return &Executor{
		registry: opts.Registry,
		provider: opts.Provider,
		tools:    opts.Tools,
		store:    opts.Store,
		logger:   opts.Logger,
		emit:     opts.Emit,
		maxDepth: opts.MaxDepth,
		maxIters: opts.MaxIterations,
	}
}

// Registry returns the definition registry.
func (e *Executor) Registry() *Registry { return e.registry }

// Run executes one sub-agent at the given depth. The caller passes its own
// depth; the child runs at depth+1 and is rejected when that passes the
// ceiling. contextSummary is optional extra context appended to the task.
func (e *Executor) Run(ctx context.Context, agentID, task, contextSummary string, depth int) (Result, error) {
	childDepth := depth + 1
	if childDepth > e.maxDepth {
		return Result{}, fmt.Errorf("%w: depth %d exceeds limit %d", ErrDepthExceeded, childDepth, e.maxDepth)
	}
	def, ok := e.registry.Get(agentID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAgent, agentID)
	}

	runID := uuid.NewString()
	start := time.Now()
	if e.store != nil {
		if err := e.store.StartSubagentRun(&audit.SubagentRunRecord{
			RunID:     runID,
			AgentID:   agentID,
			Depth:     childDepth,
			Task:      task,
			StartedAt: start,
		}); err != nil {
			e.logger.Warn("subagent run not recorded", "run_id", runID, "error", err)
		}
	}
	e.emitEvent(Event{Kind: EventStarted, RunID: runID, AgentID: agentID, Depth: childDepth})
	e.logger.Info("subagent started", "run_id", runID, "agent", agentID, "depth", childDepth)

	result, err := e.runLoop(ctx, def, task, contextSummary)
	result.RunID = runID
	result.AgentID = agentID
	result.DurationMS = time.Since(start).Milliseconds()

	if e.store != nil {
		if ferr := e.store.FinishSubagentRun(runID, result.Success, result.DurationMS, result.Iterations); ferr != nil {
			e.logger.Warn("subagent run not finalized", "run_id", runID, "error", ferr)
		}
	}
	if err != nil {
		e.emitEvent(Event{Kind: EventFailed, RunID: runID, AgentID: agentID, Depth: childDepth, Error: err.Error()})
		e.logger.Error("subagent failed", "run_id", runID, "agent", agentID, "error", err)
		return result, err
	}
	e.emitEvent(Event{Kind: EventCompleted, RunID: runID, AgentID: agentID, Depth: childDepth})
	e.logger.Info("subagent finished", "run_id", runID, "agent", agentID,
		"success", result.Success, "iterations", result.Iterations, "duration_ms", result.DurationMS)
	return result, nil
}

func (e *Executor) runLoop(ctx context.Context, def Definition, task, contextSummary string) (Result, error) {
	userContent := task
	if contextSummary != "" {
		userContent = task + "\n\nAdditional context: " + contextSummary
	}
	messages := []provider.Message{
		{Role: "system", Content: def.SystemPrompt},
		{Role: "user", Content: userContent},
	}
	defs := e.toolDefinitions(def)

	var result Result
	budget := def.MaxIterations
	if e.maxIters > 0 && budget > e.maxIters {
		budget = e.maxIters
	}
	for iteration := 1; iteration <= budget; iteration++ {
		result.Iterations = iteration
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := e.provider.Chat(ctx, &provider.ChatRequest{
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			return result, fmt.Errorf("sub-agent %s: %w", def.ID, err)
		}

		if len(resp.ToolCalls) == 0 {
			result.Response = resp.Content
			result.Success = true
			return result, nil
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			output := e.executeTool(ctx, def, call, &result)
			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	result.Response = "Maximum iterations reached"
	return result, nil
}

func (e *Executor) executeTool(ctx context.Context, def Definition, call provider.ToolCall, result *Result) string {
	if !def.AllowsTool(call.Name) {
		return fmt.Sprintf("Error: tool %s is not available to agent %s", call.Name, def.ID)
	}
	output, err := e.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", call.Name, err)
	}
	if writeTools[call.Name] {
		if path := tools.GetString(call.Arguments, "path", ""); path != "" {
			result.FilesModified = appendUnique(result.FilesModified, path)
		}
	}
	return output
}

func (e *Executor) toolDefinitions(def Definition) []provider.ToolDefinition {
	all := e.tools.Definitions()
	if len(def.AllowedTools) == 0 {
		return all
	}
	filtered := make([]provider.ToolDefinition, 0, len(def.AllowedTools))
	for _, td := range all {
		if def.AllowsTool(td.Function.Name) {
			filtered = append(filtered, td)
		}
	}
	return filtered
}

func (e *Executor) emitEvent(ev Event) {
	if e.emit != nil {
		e.emit(ev)
	}
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
