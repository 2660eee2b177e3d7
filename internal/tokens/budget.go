package tokens

import (
	"strings"
	"sync"
	"time"

	"github.com/KafClaw/agentcore/internal/provider"
)

const (
	// MaxToolResponseTokens caps a single tool response before truncation.
	MaxToolResponseTokens = 25000
	// DefaultMaxContextTokens applies to unrecognized models.
	DefaultMaxContextTokens = 128000

	// DefaultWarningThreshold and DefaultAlertThreshold are utilization
	// fractions of the full model window.
	DefaultWarningThreshold = 0.75
	DefaultAlertThreshold   = 0.85

	// DefaultReservedSystemTokens and DefaultReservedResponseTokens are
	// subtracted from the model limit before budgeting.
	DefaultReservedSystemTokens   = 4000
	DefaultReservedResponseTokens = 8192
)

// AlertLevel classifies context-window utilization.
type AlertLevel int

const (
	LevelNormal AlertLevel = iota
	LevelWarning
	LevelAlert
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelAlert:
		return "alert"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// modelLimits maps model-name substrings to context window sizes.
var modelLimits = []struct {
	substr string
	limit  int
}{
	{"claude-opus", 200000},
	{"claude-sonnet", 200000},
	{"claude-haiku", 200000},
	{"claude", 200000},
}

// ModelContextLimit returns the context window for a model name.
func ModelContextLimit(model string) int {
	lower := strings.ToLower(model)
	for _, m := range modelLimits {
		if strings.Contains(lower, m.substr) {
			return m.limit
		}
	}
	return DefaultMaxContextTokens
}

// Stats is a snapshot of token usage by category.
type Stats struct {
	SystemPrompt   int       `json:"system_prompt"`
	User           int       `json:"user"`
	Assistant      int       `json:"assistant"`
	ToolResults    int       `json:"tool_results"`
	DecisionLedger int       `json:"decision_ledger"`
	Total          int       `json:"total"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s *Stats) recompute() {
	s.Total = s.SystemPrompt + s.User + s.Assistant + s.ToolResults + s.DecisionLedger
	s.Timestamp = time.Now()
}

// Config tunes a BudgetManager.
type Config struct {
	MaxContextTokens       int     `json:"max_context_tokens" envconfig:"MAX_CONTEXT_TOKENS"`
	WarningThreshold       float64 `json:"warning_threshold" envconfig:"WARNING_THRESHOLD"`
	AlertThreshold         float64 `json:"alert_threshold" envconfig:"ALERT_THRESHOLD"`
	ReservedSystemTokens   int     `json:"reserved_system_tokens" envconfig:"RESERVED_SYSTEM_TOKENS"`
	ReservedResponseTokens int     `json:"reserved_response_tokens" envconfig:"RESERVED_RESPONSE_TOKENS"`
}

// DefaultConfig returns the standard budget configuration.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:       DefaultMaxContextTokens,
		WarningThreshold:       DefaultWarningThreshold,
		AlertThreshold:         DefaultAlertThreshold,
		ReservedSystemTokens:   DefaultReservedSystemTokens,
		ReservedResponseTokens: DefaultReservedResponseTokens,
	}
}

// ConfigForModel returns DefaultConfig sized for the given model.
func ConfigForModel(model string) Config {
	cfg := DefaultConfig()
	cfg.MaxContextTokens = ModelContextLimit(model)
	return cfg
}

// BudgetManager tracks token usage against a context-window budget.
// All methods are safe for concurrent use.
type BudgetManager struct {
	mu        sync.RWMutex
	cfg       Config
	stats     Stats
	estimator Estimator
}

// NewBudgetManager creates a budget manager. A nil estimator gets the
// byte heuristic.
func NewBudgetManager(cfg Config, est Estimator) *BudgetManager {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = DefaultAlertThreshold
	}
	if est == nil {
		est = HeuristicEstimator{}
	}
	return &BudgetManager{
		cfg:       cfg,
		estimator: est,
		stats:     Stats{Timestamp: time.Now()},
	}
}

// Estimate returns the approximate token count for text.
func (b *BudgetManager) Estimate(text string) int {
	return b.estimator.Estimate(text)
}

// Available returns the usable window after reservations.
func (b *BudgetManager) Available() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.availableLocked()
}

func (b *BudgetManager) availableLocked() int {
	avail := b.cfg.MaxContextTokens - b.cfg.ReservedSystemTokens - b.cfg.ReservedResponseTokens
	if avail < 0 {
		return 0
	}
	return avail
}

// Usage returns current usage as a fraction of the full model window. It
// can exceed 1.0. Reservations affect Available and the prune budget, not
// the ladder.
func (b *BudgetManager) Usage() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cfg.MaxContextTokens <= 0 {
		return 1.0
	}
	return float64(b.stats.Total) / float64(b.cfg.MaxContextTokens)
}

// Level maps usage onto the alert ladder.
func (b *BudgetManager) Level() AlertLevel {
	usage := b.Usage()
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch {
	case usage >= 1.0:
		return LevelCritical
	case usage > b.cfg.AlertThreshold:
		return LevelAlert
	case usage > b.cfg.WarningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Remaining returns how many tokens fit before the available window is full.
func (b *BudgetManager) Remaining() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rem := b.availableLocked() - b.stats.Total
	if rem < 0 {
		return 0
	}
	return rem
}

// Stats returns a copy of the current usage snapshot.
func (b *BudgetManager) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Config returns the active configuration.
func (b *BudgetManager) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// AddSystemPrompt accounts a system prompt.
func (b *BudgetManager) AddSystemPrompt(text string) {
	b.add(func(s *Stats, n int) { s.SystemPrompt += n }, text)
}

// AddUser accounts a user message.
func (b *BudgetManager) AddUser(text string) {
	b.add(func(s *Stats, n int) { s.User += n }, text)
}

// AddAssistant accounts an assistant message.
func (b *BudgetManager) AddAssistant(text string) {
	b.add(func(s *Stats, n int) { s.Assistant += n }, text)
}

// AddToolResult accounts a tool result.
func (b *BudgetManager) AddToolResult(text string) {
	b.add(func(s *Stats, n int) { s.ToolResults += n }, text)
}

// AddDecisionLedger accounts decision-ledger content.
func (b *BudgetManager) AddDecisionLedger(text string) {
	b.add(func(s *Stats, n int) { s.DecisionLedger += n }, text)
}

func (b *BudgetManager) add(apply func(*Stats, int), text string) {
	n := b.estimator.Estimate(text)
	b.mu.Lock()
	defer b.mu.Unlock()
	apply(&b.stats, n)
	b.stats.recompute()
}

// Reset clears all usage.
func (b *BudgetManager) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Stats{}
	b.stats.recompute()
}

// UpdateFromMessages recomputes usage from scratch out of a message history.
// A user-role message that carries a tool call ID is a tool result.
func (b *BudgetManager) UpdateFromMessages(systemPrompt string, messages []provider.Message) {
	fresh := Stats{}
	fresh.SystemPrompt = b.estimator.Estimate(systemPrompt)
	for _, msg := range messages {
		n := b.estimator.Estimate(msg.Content)
		switch {
		case msg.Role == "tool" || msg.ToolCallID != "":
			fresh.ToolResults += n
		case msg.Role == "system":
			fresh.SystemPrompt += n
		case msg.Role == "assistant":
			fresh.Assistant += n
		default:
			fresh.User += n
		}
	}
	fresh.recompute()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = fresh
}
