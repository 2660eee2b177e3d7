// Package prune reduces conversation history to a token budget while keeping
// the messages that matter most.
package prune

import (
	"log/slog"
	"sort"
	"sync"
)

// Semantic scores by message kind, on a 0-1000 scale.
const (
	ScoreSystem            = 950
	ScoreUserQuery         = 850
	ScoreAssistantToolCall = 650
	ScoreToolResponse      = 600
	ScoreAssistant         = 500
	ScoreContext           = 300

	// ProtectedScore marks messages that survive pruning regardless of
	// recency.
	ProtectedScore = 950
)

// Kind classifies a message for semantic scoring.
type Kind int

const (
	KindSystem Kind = iota
	KindUserQuery
	KindAssistant
	KindAssistantToolCall
	KindToolResponse
	KindContext
)

// Score returns the base semantic score for a kind.
func (k Kind) Score() int {
	switch k {
	case KindSystem:
		return ScoreSystem
	case KindUserQuery:
		return ScoreUserQuery
	case KindAssistantToolCall:
		return ScoreAssistantToolCall
	case KindToolResponse:
		return ScoreToolResponse
	case KindAssistant:
		return ScoreAssistant
	default:
		return ScoreContext
	}
}

// Item is one scoreable message in the history.
type Item struct {
	Kind   Kind
	Tokens int
	// Score overrides the kind-derived score when non-zero, clamped to
	// [0,1000].
	Score int
}

func (it Item) semanticScore() int {
	s := it.Score
	if s == 0 {
		s = it.Kind.Score()
	}
	if s < 0 {
		return 0
	}
	if s > 1000 {
		return 1000
	}
	return s
}

// Config tunes the pruner.
type Config struct {
	MaxTokens            int     `json:"max_tokens" envconfig:"MAX_TOKENS"`
	SemanticThreshold    int     `json:"semantic_threshold" envconfig:"SEMANTIC_THRESHOLD"`
	RecencyBonusPerTurn  float64 `json:"recency_bonus_per_turn" envconfig:"RECENCY_BONUS_PER_TURN"`
	MinKeepSemantic      int     `json:"min_keep_semantic" envconfig:"MIN_KEEP_SEMANTIC"`
	ProtectedRecentTurns int     `json:"protected_recent_turns" envconfig:"PROTECTED_RECENT_TURNS"`
	Aggressive           bool    `json:"aggressive" envconfig:"AGGRESSIVE"`
}

// DefaultConfig returns the standard pruning configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:            8192,
		SemanticThreshold:    300,
		RecencyBonusPerTurn:  0.05,
		MinKeepSemantic:      400,
		ProtectedRecentTurns: 2,
		Aggressive:           false,
	}
}

// Result reports what a prune pass kept and dropped. Index slices refer to
// the input order and are sorted ascending.
type Result struct {
	KeptIndices   []int
	PrunedIndices []int
	KeptTokens    int
	PrunedTokens  int
	Pruned        bool
}

// Pruner selects which messages to keep under a token budget.
// Safe for concurrent use.
type Pruner struct {
	mu     sync.RWMutex
	cfg    Config
	logger *slog.Logger
}

// NewPruner creates a pruner. A nil logger gets slog.Default().
func NewPruner(cfg Config, logger *slog.Logger) *Pruner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{cfg: cfg, logger: logger}
}

// SetAggressive toggles aggressive mode for subsequent passes.
func (p *Pruner) SetAggressive(v bool) {
	p.mu.Lock()
	p.cfg.Aggressive = v
	p.mu.Unlock()
}

// Config returns the active configuration.
func (p *Pruner) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Prune selects items to keep within budget tokens. A budget of zero or less
// uses the configured MaxTokens. Kept items preserve their original relative
// order.
func (p *Pruner) Prune(items []Item, budget int) Result {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	if budget <= 0 {
		budget = cfg.MaxTokens
	}
	if len(items) == 0 {
		return Result{}
	}

	total := 0
	for _, it := range items {
		total += it.Tokens
	}
	if total <= budget {
		kept := make([]int, len(items))
		for i := range items {
			kept[i] = i
		}
		return Result{KeptIndices: kept, KeptTokens: total}
	}

	type scored struct {
		idx      int
		tokens   int
		priority float64
		protect  bool
	}
	n := len(items)
	all := make([]scored, n)
	for i, it := range items {
		turnsFromEnd := n - 1 - i
		recency := 1.0 / (1.0 + float64(turnsFromEnd)*0.1)
		sem := it.semanticScore()
		ratio := float64(sem) / 1000.0
		sizePenalty := 1.0 - float64(it.Tokens)/500.0
		if sizePenalty < 0 {
			sizePenalty = 0
		}
		priority := ratio*0.6 + recency*0.3 + sizePenalty*0.1 + recency*cfg.RecencyBonusPerTurn

		protected := turnsFromEnd < cfg.ProtectedRecentTurns || sem >= ProtectedScore
		all[i] = scored{idx: i, tokens: it.Tokens, priority: priority, protect: protected}
	}

	var protectedTokens int
	var prunable []scored
	var keptIdx []int
	for _, s := range all {
		if s.protect {
			protectedTokens += s.tokens
			keptIdx = append(keptIdx, s.idx)
		} else {
			prunable = append(prunable, s)
		}
	}

	if protectedTokens >= budget {
		// Protected messages alone exceed the budget. Keep only them, on
		// the conservative side of losing required context.
		p.logger.Warn("protected messages exceed prune budget",
			"protected_tokens", protectedTokens, "budget", budget)
		res := Result{KeptIndices: keptIdx, KeptTokens: protectedTokens, Pruned: true}
		for _, s := range prunable {
			res.PrunedIndices = append(res.PrunedIndices, s.idx)
			res.PrunedTokens += s.tokens
		}
		sort.Ints(res.PrunedIndices)
		return res
	}

	sort.SliceStable(prunable, func(i, j int) bool {
		return prunable[i].priority > prunable[j].priority
	})

	remaining := budget - protectedTokens
	keptTokens := protectedTokens
	var prunedIdx []int
	prunedTokens := 0
	for _, s := range prunable {
		if s.tokens <= remaining {
			remaining -= s.tokens
			keptTokens += s.tokens
			keptIdx = append(keptIdx, s.idx)
		} else {
			prunedIdx = append(prunedIdx, s.idx)
			prunedTokens += s.tokens
		}
	}

	sort.Ints(keptIdx)
	sort.Ints(prunedIdx)
	return Result{
		KeptIndices:   keptIdx,
		PrunedIndices: prunedIdx,
		KeptTokens:    keptTokens,
		PrunedTokens:  prunedTokens,
		Pruned:        len(prunedIdx) > 0,
	}
}
