// Package contextmgr coordinates token budgeting, pruning and truncation so
// a conversation never outgrows its context window.
package contextmgr

import (
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/agentcore/internal/prune"
	"github.com/KafClaw/agentcore/internal/provider"
	"github.com/KafClaw/agentcore/internal/tokens"
	"github.com/KafClaw/agentcore/internal/truncate"
)

// TrimConfig controls automatic context trimming.
type TrimConfig struct {
	Enabled               bool    `json:"enabled" envconfig:"ENABLED"`
	TargetUtilization     float64 `json:"target_utilization" envconfig:"TARGET_UTILIZATION"`
	AggressiveOnCritical  bool    `json:"aggressive_on_critical" envconfig:"AGGRESSIVE_ON_CRITICAL"`
	MaxToolResponseTokens int     `json:"max_tool_response_tokens" envconfig:"MAX_TOOL_RESPONSE_TOKENS"`
	SemanticPruning       bool    `json:"semantic_pruning" envconfig:"SEMANTIC_PRUNING"`
}

// DefaultTrimConfig returns the standard trim configuration.
func DefaultTrimConfig() TrimConfig {
	return TrimConfig{
		Enabled:               true,
		TargetUtilization:     0.7,
		AggressiveOnCritical:  true,
		MaxToolResponseTokens: tokens.MaxToolResponseTokens,
		SemanticPruning:       true,
	}
}

// EventKind identifies a context-management event.
type EventKind string

const (
	EventWarningThreshold      EventKind = "warning_threshold"
	EventAlertThreshold        EventKind = "alert_threshold"
	EventContextPruned         EventKind = "context_pruned"
	EventToolResponseTruncated EventKind = "tool_response_truncated"
	EventContextExceeded       EventKind = "context_exceeded"
)

// Event is a typed notification about context pressure or mitigation.
type Event struct {
	Kind             EventKind `json:"kind"`
	Utilization      float64   `json:"utilization,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	MessagesRemoved  int       `json:"messages_removed,omitempty"`
	TokensFreed      int       `json:"tokens_freed,omitempty"`
	UtilizationAfter float64   `json:"utilization_after,omitempty"`
	OriginalTokens   int       `json:"original_tokens,omitempty"`
	TruncatedTokens  int       `json:"truncated_tokens,omitempty"`
	ToolName         string    `json:"tool_name,omitempty"`
}

// Efficiency captures the effect of the last trim pass.
type Efficiency struct {
	UtilizationBefore      float64   `json:"utilization_before"`
	UtilizationAfter       float64   `json:"utilization_after"`
	TokensFreed            int       `json:"tokens_freed"`
	MessagesPruned         int       `json:"messages_pruned"`
	ToolResponsesTruncated int       `json:"tool_responses_truncated"`
	Timestamp              time.Time `json:"timestamp"`
}

// Summary is a diagnostics snapshot of context state.
type Summary struct {
	TotalTokens      int               `json:"total_tokens"`
	MaxTokens        int               `json:"max_tokens"`
	AvailableTokens  int               `json:"available_tokens"`
	Utilization      float64           `json:"utilization"`
	AlertLevel       tokens.AlertLevel `json:"alert_level"`
	Stats            tokens.Stats      `json:"stats"`
	WarningThreshold float64           `json:"warning_threshold"`
	AlertThreshold   float64           `json:"alert_threshold"`
}

// Manager orchestrates the budget, pruner and truncator for one session.
// Safe for concurrent use.
type Manager struct {
	budget *tokens.BudgetManager
	pruner *prune.Pruner
	logger *slog.Logger
	emit   func(Event)

	mu             sync.RWMutex
	trim           TrimConfig
	enabled        bool
	lastEfficiency *Efficiency
	truncations    int
}

// Options configures a Manager. Zero values get defaults; Emit may be nil.
type Options struct {
	Budget tokens.Config
	Trim   TrimConfig
	// Prune tunes the scorer; MaxTokens is always derived from Budget.
	Prune prune.Config
	Emit  func(Event)
	// Estimator overrides the byte heuristic, e.g. the tiktoken encoder.
	Estimator tokens.Estimator
	Logger    *slog.Logger
}

// NewManager creates a context manager.
func NewManager(opts Options) *Manager {
	if opts.Trim == (TrimConfig{}) {
		opts.Trim = DefaultTrimConfig()
	}
	if opts.Trim.MaxToolResponseTokens <= 0 {
		opts.Trim.MaxToolResponseTokens = tokens.MaxToolResponseTokens
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	budget := tokens.NewBudgetManager(opts.Budget, opts.Estimator)
	prunerCfg := opts.Prune
	if prunerCfg == (prune.Config{}) {
		prunerCfg = prune.DefaultConfig()
	}
	prunerCfg.MaxTokens = budget.Available()
	return &Manager{
		budget:  budget,
		pruner:  prune.NewPruner(prunerCfg, opts.Logger),
		logger:  opts.Logger,
		emit:    opts.Emit,
		trim:    opts.Trim,
		enabled: true,
	}
}

// ForModel builds a manager sized to a model's context window.
func ForModel(model string, emit func(Event)) *Manager {
	return NewManager(Options{Budget: tokens.ConfigForModel(model), Emit: emit})
}

// Budget exposes the underlying budget manager.
func (m *Manager) Budget() *tokens.BudgetManager { return m.budget }

// TrimConfig returns the active trim configuration.
func (m *Manager) TrimConfig() TrimConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trim
}

// SetTrimConfig replaces the trim configuration.
func (m *Manager) SetTrimConfig(cfg TrimConfig) {
	m.mu.Lock()
	m.trim = cfg
	m.mu.Unlock()
}

// SetEnabled toggles budgeting entirely.
func (m *Manager) SetEnabled(v bool) {
	m.mu.Lock()
	m.enabled = v
	m.mu.Unlock()
}

// LastEfficiency returns metrics from the most recent trim, if any.
func (m *Manager) LastEfficiency() *Efficiency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastEfficiency == nil {
		return nil
	}
	cp := *m.lastEfficiency
	return &cp
}

// Reset clears budget accounting and efficiency history.
func (m *Manager) Reset() {
	m.budget.Reset()
	m.mu.Lock()
	m.lastEfficiency = nil
	m.truncations = 0
	m.mu.Unlock()
}

// UpdateFromMessages recomputes the budget from a message history and emits
// threshold alerts.
func (m *Manager) UpdateFromMessages(systemPrompt string, messages []provider.Message) {
	m.budget.UpdateFromMessages(systemPrompt, messages)
	m.CheckAndEmitAlerts()
}

// CheckAndEmitAlerts emits at most one event describing current pressure.
func (m *Manager) CheckAndEmitAlerts() {
	if m.emit == nil {
		return
	}
	stats := m.budget.Stats()
	cfg := m.budget.Config()
	utilization := m.budget.Usage()

	switch m.budget.Level() {
	case tokens.LevelCritical:
		m.emit(Event{Kind: EventContextExceeded, TotalTokens: stats.Total, MaxTokens: cfg.MaxContextTokens})
	case tokens.LevelAlert:
		m.emit(Event{Kind: EventAlertThreshold, Utilization: utilization, TotalTokens: stats.Total, MaxTokens: cfg.MaxContextTokens})
	case tokens.LevelWarning:
		m.emit(Event{Kind: EventWarningThreshold, Utilization: utilization, TotalTokens: stats.Total, MaxTokens: cfg.MaxContextTokens})
	}
}

// classify maps a message onto the pruner's semantic kinds.
func classify(msg provider.Message) prune.Kind {
	switch {
	case msg.Role == "system":
		return prune.KindSystem
	case msg.Role == "tool" || (msg.Role == "user" && msg.ToolCallID != ""):
		return prune.KindToolResponse
	case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
		return prune.KindAssistantToolCall
	case msg.Role == "assistant":
		return prune.KindAssistant
	case msg.Role == "user":
		return prune.KindUserQuery
	default:
		return prune.KindContext
	}
}

func (m *Manager) toItems(messages []provider.Message) []prune.Item {
	items := make([]prune.Item, len(messages))
	for i, msg := range messages {
		items[i] = prune.Item{Kind: classify(msg), Tokens: m.budget.Estimate(msg.Content)}
	}
	return items
}

// EnforceContextWindow prunes history when pressure is at alert level or
// above, returning the kept messages. Under normal pressure the input comes
// back untouched. The caller's original order is preserved.
func (m *Manager) EnforceContextWindow(systemPrompt string, messages []provider.Message) []provider.Message {
	m.mu.RLock()
	trim := m.trim
	enabled := m.enabled
	m.mu.RUnlock()

	if !enabled || !trim.Enabled {
		return messages
	}

	utilizationBefore := m.budget.Usage()
	level := m.budget.Level()
	if level != tokens.LevelAlert && level != tokens.LevelCritical {
		return messages
	}

	targetUtilization := trim.TargetUtilization
	aggressive := level == tokens.LevelCritical && trim.AggressiveOnCritical
	if aggressive {
		targetUtilization *= 0.8
	}
	m.pruner.SetAggressive(aggressive)

	targetTokens := int(float64(m.budget.Available()) * targetUtilization)
	result := m.pruner.Prune(m.toItems(messages), targetTokens)
	if !result.Pruned {
		return messages
	}

	kept := make([]provider.Message, 0, len(result.KeptIndices))
	for _, idx := range result.KeptIndices {
		kept = append(kept, messages[idx])
	}

	m.UpdateFromMessages(systemPrompt, kept)
	utilizationAfter := m.budget.Usage()

	m.mu.Lock()
	m.lastEfficiency = &Efficiency{
		UtilizationBefore:      utilizationBefore,
		UtilizationAfter:       utilizationAfter,
		TokensFreed:            result.PrunedTokens,
		MessagesPruned:         len(result.PrunedIndices),
		ToolResponsesTruncated: m.truncations,
		Timestamp:              time.Now(),
	}
	m.mu.Unlock()

	if m.emit != nil {
		m.emit(Event{
			Kind:             EventContextPruned,
			MessagesRemoved:  len(result.PrunedIndices),
			TokensFreed:      result.PrunedTokens,
			UtilizationAfter: utilizationAfter,
		})
	}
	m.logger.Info("context pruned",
		"messages_removed", len(result.PrunedIndices),
		"tokens_freed", result.PrunedTokens,
		"utilization_before", utilizationBefore,
		"utilization_after", utilizationAfter)

	return kept
}

// TruncateToolResponse shrinks an oversized tool response and emits an event
// when anything was cut.
func (m *Manager) TruncateToolResponse(content, toolName string) truncate.Result {
	m.mu.RLock()
	maxTokens := m.trim.MaxToolResponseTokens
	m.mu.RUnlock()

	result := truncate.AggregateToolOutput(content, maxTokens)
	if !result.Truncated {
		return result
	}

	m.mu.Lock()
	m.truncations++
	m.mu.Unlock()

	original := m.budget.Estimate(content)
	truncated := m.budget.Estimate(result.Content)
	if m.emit != nil {
		m.emit(Event{
			Kind:            EventToolResponseTruncated,
			OriginalTokens:  original,
			TruncatedTokens: truncated,
			ToolName:        toolName,
		})
	}
	m.logger.Debug("tool response truncated",
		"tool", toolName, "original_tokens", original, "truncated_tokens", truncated)
	return result
}

// CanAddMessage reports whether estimated tokens still fit.
func (m *Manager) CanAddMessage(estimated int) bool {
	return estimated <= m.budget.Remaining()
}

// PreviewPrune runs the pruner without applying the result.
func (m *Manager) PreviewPrune(messages []provider.Message, targetTokens int) prune.Result {
	return m.pruner.Prune(m.toItems(messages), targetTokens)
}

// GetSummary returns a diagnostics snapshot.
func (m *Manager) GetSummary() Summary {
	stats := m.budget.Stats()
	cfg := m.budget.Config()
	return Summary{
		TotalTokens:      stats.Total,
		MaxTokens:        cfg.MaxContextTokens,
		AvailableTokens:  m.budget.Available(),
		Utilization:      m.budget.Usage(),
		AlertLevel:       m.budget.Level(),
		Stats:            stats,
		WarningThreshold: cfg.WarningThreshold,
		AlertThreshold:   cfg.AlertThreshold,
	}
}
