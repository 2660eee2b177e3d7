// Package agent runs the governed tool-call loop: every tool call passes
// through policy, learned approvals, the human gate and the loop detector
// before it executes.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/agentcore/internal/approval"
	"github.com/KafClaw/agentcore/internal/audit"
	"github.com/KafClaw/agentcore/internal/bus"
	"github.com/KafClaw/agentcore/internal/config"
	"github.com/KafClaw/agentcore/internal/contextmgr"
	"github.com/KafClaw/agentcore/internal/loopdetect"
	"github.com/KafClaw/agentcore/internal/policy"
	"github.com/KafClaw/agentcore/internal/provider"
	"github.com/KafClaw/agentcore/internal/session"
	"github.com/KafClaw/agentcore/internal/subagent"
	"github.com/KafClaw/agentcore/internal/tokens"
	"github.com/KafClaw/agentcore/internal/tools"
)

// Loop is the agent core for one session.
type Loop struct {
	cfg       *config.Config
	provider  provider.LLMProvider
	registry  *tools.Registry
	policy    *policy.Manager
	recorder  *approval.Recorder
	gate      *approval.Gate
	detector  *loopdetect.Detector
	contexts  *contextmgr.Manager
	subagents *subagent.Executor
	sessions  *session.Manager
	store     *audit.Store
	bus       *bus.Bus
	logger    *slog.Logger

	systemPrompt  string
	sessionID     string
	maxIterations int
}

// Options wires a Loop. Provider, Policy, Recorder and Gate are required;
// the rest defaults.
type Options struct {
	Config       *config.Config
	Provider     provider.LLMProvider
	Registry     *tools.Registry
	Policy       *policy.Manager
	Recorder     *approval.Recorder
	Gate         *approval.Gate
	Detector     *loopdetect.Detector
	Contexts     *contextmgr.Manager
	Subagents    *subagent.Executor
	Sessions     *session.Manager
	Store        *audit.Store
	Bus          *bus.Bus
	Logger       *slog.Logger
	SystemPrompt string
	SessionID    string
}

// NewLoop creates an agent loop and registers the sub-agent dispatch tools
// with the policy layer.
func NewLoop(opts Options) *Loop {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}
	if opts.Detector == nil {
		opts.Detector = loopdetect.NewDetector(opts.Config.Loop)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager("")
	}
	if opts.SessionID == "" {
		opts.SessionID = "agent:main"
	}
	maxIterations := opts.Config.Model.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 50
	}
	l := &Loop{
		cfg:           opts.Config,
		provider:      opts.Provider,
		registry:      opts.Registry,
		policy:        opts.Policy,
		recorder:      opts.Recorder,
		gate:          opts.Gate,
		detector:      opts.Detector,
		contexts:      opts.Contexts,
		subagents:     opts.Subagents,
		sessions:      opts.Sessions,
		store:         opts.Store,
		bus:           opts.Bus,
		logger:        opts.Logger,
		systemPrompt:  opts.SystemPrompt,
		sessionID:     opts.SessionID,
		maxIterations: maxIterations,
	}
	if l.policy != nil {
		if err := l.policy.SyncAvailableTools(l.availableToolNames()); err != nil {
			l.logger.Warn("tool policy sync failed", "error", err)
		}
	}
	return l
}

func (l *Loop) availableToolNames() []string {
	names := l.registry.Names()
	if l.subagents != nil {
		for _, def := range l.subagents.Registry().List() {
			names = append(names, def.ToolName())
		}
	}
	return names
}

// Gate returns the approval gate, for surfaces that resolve approvals.
func (l *Loop) Gate() *approval.Gate { return l.gate }

// Detector returns the loop detector.
func (l *Loop) Detector() *loopdetect.Detector { return l.detector }

// Contexts returns the context manager.
func (l *Loop) Contexts() *contextmgr.Manager { return l.contexts }

// Process runs one user turn to completion and persists the session.
func (l *Loop) Process(ctx context.Context, content string) (string, error) {
	// Repeat counts and the iteration ceiling are scoped to one turn.
	l.detector.Reset()

	sess := l.sessions.GetOrCreate(l.sessionID)
	sess.AddMessage("user", content)

	messages := append(
		[]provider.Message{{Role: "system", Content: l.systemPrompt}},
		sess.ProviderHistory()...,
	)

	response, final, err := l.runLoop(ctx, messages)
	if err != nil {
		return "", err
	}

	// Persist the post-loop history: pruning may have dropped messages and
	// the loop appended tool traffic.
	kept := make([]session.Message, 0, len(final))
	for _, msg := range final {
		if msg.Role == "system" {
			continue
		}
		kept = append(kept, session.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	kept = append(kept, session.Message{Role: "assistant", Content: response})
	sess.SetMessages(kept)
	if err := l.sessions.Save(sess); err != nil {
		l.logger.Warn("session not saved", "session", l.sessionID, "error", err)
	}
	return response, nil
}

// runLoop drives provider calls and tool execution until the model answers
// without tool calls or the iteration budget runs out. It returns the final
// response and the message history as it stood at the end.
func (l *Loop) runLoop(ctx context.Context, messages []provider.Message) (string, []provider.Message, error) {
	toolDefs := l.toolDefinitions()

	for i := 0; i < l.maxIterations; i++ {
		messages = l.enforceContext(messages)

		resp, err := l.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			Model:       l.cfg.Model.Name,
			MaxTokens:   l.cfg.Model.MaxTokens,
			Temperature: l.cfg.Model.Temperature,
		})
		if err != nil {
			return "", messages, fmt.Errorf("LLM call failed: %w", err)
		}
		if l.contexts != nil {
			l.contexts.Budget().AddAssistant(resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, messages, nil
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result := l.executeToolCall(ctx, tc)
			if l.contexts != nil {
				truncated := l.contexts.TruncateToolResponse(result, tc.Name)
				result = truncated.Content
				l.contexts.Budget().AddToolResult(result)
			}
			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
			l.logger.Debug("tool executed", "name", tc.Name, "result_length", len(result))
		}
	}
	return "Max iterations reached. Please try a simpler request.", messages, nil
}

func (l *Loop) enforceContext(messages []provider.Message) []provider.Message {
	if l.contexts == nil {
		return messages
	}
	// The system prompt rides in messages[0], so the budget recompute gets
	// an empty standalone prompt.
	l.contexts.UpdateFromMessages("", messages)
	before := len(messages)
	kept := l.contexts.EnforceContextWindow("", messages)
	if len(kept) != before {
		if eff := l.contexts.LastEfficiency(); eff != nil {
			l.recordContextEvent("context_pruned", eff.TokensFreed, map[string]any{
				"messages_removed":  before - len(kept),
				"utilization_after": eff.UtilizationAfter,
			})
		}
	}
	return kept
}

// executeToolCall is the single gate every tool call passes through:
// loop detection, argument constraints, policy, learned auto-approval,
// one-shot preapprovals and finally the human gate.
func (l *Loop) executeToolCall(ctx context.Context, tc provider.ToolCall) string {
	outcome := l.detector.Record(tc.Name, tc.Arguments)
	switch outcome.Verdict {
	case loopdetect.Blocked:
		l.recordLoopEvent(outcome)
		return fmt.Sprintf("Error: tool call loop detected: %s repeated %d times with identical arguments. Change the arguments or try a different approach.",
			tc.Name, outcome.RepeatCount)
	case loopdetect.MaxIterationsReached:
		l.recordLoopEvent(outcome)
		return "Error: maximum tool iterations reached for this session."
	case loopdetect.Warning:
		l.recordLoopEvent(outcome)
		l.logger.Warn("tool call nearing repeat limit", "tool", tc.Name, "count", outcome.RepeatCount)
	}

	args := tc.Arguments
	if l.policy != nil {
		res := l.policy.ApplyConstraints(tc.Name, args)
		switch res.Verdict {
		case policy.ConstraintViolated:
			return fmt.Sprintf("Policy violation: %s", res.Reason)
		case policy.ConstraintModified:
			l.logger.Info("tool arguments adjusted by policy", "tool", tc.Name, "reason", res.Reason)
			args = res.Args
		}

		switch l.policy.GetPolicy(tc.Name) {
		case policy.Deny:
			return fmt.Sprintf("Policy denied: tool %s is not allowed.", tc.Name)
		case policy.Allow:
			return l.execute(ctx, tc.Name, args, tc.ID)
		}
	}

	// Prompt-tier tool: learned patterns, then one-shot preapprovals, then
	// a human.
	if l.recorder != nil && l.recorder.ShouldAutoApprove(tc.Name) {
		l.logger.Info("tool auto-approved from learned pattern", "tool", tc.Name)
		return l.execute(ctx, tc.Name, args, tc.ID)
	}
	if l.policy != nil && l.policy.TakePreapproved(tc.Name) {
		l.logger.Info("tool ran on one-shot preapproval", "tool", tc.Name)
		return l.execute(ctx, tc.Name, args, tc.ID)
	}
	if l.gate == nil {
		return fmt.Sprintf("Approval required for tool %s, but no approval surface is configured.", tc.Name)
	}

	return l.gatedExecute(ctx, tc.Name, args, tc.ID)
}

func (l *Loop) gatedExecute(ctx context.Context, tool string, args map[string]any, callID string) string {
	var req approval.Request
	var suggestion string
	if l.recorder != nil {
		req = l.recorder.CreateRequest("", tool, args)
		suggestion = l.recorder.Suggestion(tool)
	} else {
		req = approval.Request{ToolName: tool, Args: args, RiskLevel: approval.RiskForTool(tool)}
	}
	requestID := l.gate.Create(ctx, req, suggestion, callID, l.sessionID)

	dec, err := l.gate.Wait(ctx, requestID)
	switch {
	case err == nil:
		l.recordDecision(tool, true, "", dec.AlwaysAllow)
		return l.execute(ctx, tool, args, callID)
	case errors.Is(err, approval.ErrDenied):
		l.recordDecision(tool, false, "", false)
		return fmt.Sprintf("Approval denied for tool %s.", tool)
	case errors.Is(err, approval.ErrTimeout):
		return fmt.Sprintf("Approval timed out for tool %s after %s.", tool, l.gate.Timeout())
	default:
		return fmt.Sprintf("Approval cancelled for tool %s.", tool)
	}
}

func (l *Loop) recordDecision(tool string, approved bool, reason string, alwaysAllow bool) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordDecision(tool, approved, reason, alwaysAllow); err != nil {
		l.logger.Warn("approval decision not recorded", "tool", tool, "error", err)
	}
}

// execute runs an already-authorized call: either a sub-agent dispatch or a
// plain registry tool.
func (l *Loop) execute(ctx context.Context, tool string, args map[string]any, callID string) string {
	if strings.HasPrefix(tool, subagent.ToolPrefix) {
		return l.runSubagent(ctx, strings.TrimPrefix(tool, subagent.ToolPrefix), args)
	}
	result, err := l.registry.Execute(ctx, tool, args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// runSubagent is the only place sub-agents spawn from. The root loop runs at
// depth 0; the executor enforces the depth ceiling for nested spawns.
func (l *Loop) runSubagent(ctx context.Context, agentID string, args map[string]any) string {
	if l.subagents == nil {
		return "Error: sub-agents are not configured."
	}
	task := tools.GetString(args, "task", "")
	if task == "" {
		return "Error: task is required"
	}
	summary := tools.GetString(args, "context", "")

	result, err := l.subagents.Run(ctx, agentID, task, summary, 0)
	if err != nil {
		return fmt.Sprintf("Error: sub-agent failed: %v", err)
	}
	l.publish(bus.KindSubagent, "subagent_finished", map[string]any{
		"agent_id":    result.AgentID,
		"run_id":      result.RunID,
		"success":     result.Success,
		"iterations":  result.Iterations,
		"duration_ms": result.DurationMS,
	})

	out, merr := json.Marshal(result)
	if merr != nil {
		return result.Response
	}
	return string(out)
}

func (l *Loop) toolDefinitions() []provider.ToolDefinition {
	defs := l.registry.Definitions()
	if l.subagents == nil {
		return defs
	}
	for _, def := range l.subagents.Registry().List() {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        def.ToolName(),
				Description: def.Description,
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"task": map[string]any{
							"type":        "string",
							"description": "Task instruction for the sub-agent",
						},
						"context": map[string]any{
							"type":        "string",
							"description": "Optional context carried over from the parent",
						},
					},
					"required": []string{"task"},
				},
			},
		})
	}
	return defs
}

func (l *Loop) recordLoopEvent(outcome loopdetect.Outcome) {
	if l.store != nil {
		if err := l.store.RecordLoopEvent(&audit.LoopEventRecord{
			SessionID:   l.sessionID,
			Tool:        outcome.Tool,
			Verdict:     outcome.Verdict.String(),
			RepeatCount: outcome.RepeatCount,
			Timestamp:   time.Now(),
		}); err != nil {
			l.logger.Warn("loop event not recorded", "tool", outcome.Tool, "error", err)
		}
	}
	l.publish(bus.KindLoop, "loop_"+outcome.Verdict.String(), map[string]any{
		"tool":         outcome.Tool,
		"repeat_count": outcome.RepeatCount,
	})
}

func (l *Loop) recordContextEvent(kind string, tokensFreed int, payload map[string]any) {
	if l.store != nil {
		stats := tokens.Stats{}
		if l.contexts != nil {
			stats = l.contexts.Budget().Stats()
		}
		detail, _ := json.Marshal(payload)
		if err := l.store.RecordContextEvent(&audit.ContextEventRecord{
			SessionID:    l.sessionID,
			Kind:         kind,
			TokensBefore: stats.Total + tokensFreed,
			TokensAfter:  stats.Total,
			Detail:       string(detail),
			Timestamp:    time.Now(),
		}); err != nil {
			l.logger.Warn("context event not recorded", "kind", kind, "error", err)
		}
	}
	l.publish(bus.KindContext, kind, payload)
}

func (l *Loop) publish(kind, eventType string, payload map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(bus.Event{
		Kind:      kind,
		Type:      eventType,
		SessionID: l.sessionID,
		Payload:   payload,
	})
}
