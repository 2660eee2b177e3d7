// Package approval provides interactive approval gates for high-risk tool
// calls, plus pattern learning so repeatedly approved tools stop prompting.
package approval

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// MinApprovals is the floor before auto-approval is considered.
	MinApprovals = 3
	// ApprovalThreshold is the rate a tool must sustain to qualify.
	ApprovalThreshold = 0.8

	// PatternsFileName holds learned patterns in the storage directory.
	PatternsFileName = "approval_patterns.json"

	dataVersion = 1

	maxJustifications = 10
)

// RecorderConfig tunes pattern learning.
type RecorderConfig struct {
	AlwaysAllow            []string `json:"always_allow"`
	AlwaysRequireApproval  []string `json:"always_require_approval"`
	PatternLearningEnabled bool     `json:"pattern_learning_enabled"`
	MinApprovals           int      `json:"min_approvals"`
	ApprovalThreshold      float64  `json:"approval_threshold"`
}

// DefaultRecorderConfig allows the read-only roster outright and pins the
// destructive tools to manual approval forever.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		AlwaysAllow: []string{
			"read_file", "grep_file", "list_files",
			"indexer_search_code", "indexer_search_files", "indexer_analyze_file",
			"indexer_extract_symbols", "indexer_get_metrics", "indexer_detect_language",
			"debug_agent", "analyze_agent", "get_errors",
			"list_skills", "search_skills", "load_skill", "search_tools",
		},
		AlwaysRequireApproval:  []string{"delete_file", "run_pty_cmd", "execute_code"},
		PatternLearningEnabled: true,
		MinApprovals:           MinApprovals,
		ApprovalThreshold:      ApprovalThreshold,
	}
}

// Pattern is the learned approval history for one tool.
type Pattern struct {
	ToolName       string    `json:"tool_name"`
	TotalRequests  int       `json:"total_requests"`
	Approvals      int       `json:"approvals"`
	Denials        int       `json:"denials"`
	AlwaysAllow    bool      `json:"always_allow"`
	LastUpdated    time.Time `json:"last_updated"`
	Justifications []string  `json:"justifications,omitempty"`
}

// ApprovalRate returns approvals/total, or 0 with no history.
func (p *Pattern) ApprovalRate() float64 {
	if p.TotalRequests == 0 {
		return 0
	}
	return float64(p.Approvals) / float64(p.TotalRequests)
}

// Qualifies reports whether the pattern clears both learning thresholds.
func (p *Pattern) Qualifies(minApprovals int, threshold float64) bool {
	return p.Approvals >= minApprovals && p.ApprovalRate() >= threshold
}

func (p *Pattern) recordDecision(approved bool, reason string) {
	p.TotalRequests++
	if approved {
		p.Approvals++
	} else {
		p.Denials++
	}
	p.LastUpdated = time.Now()
	if reason != "" {
		if len(p.Justifications) >= maxJustifications {
			p.Justifications = p.Justifications[1:]
		}
		p.Justifications = append(p.Justifications, reason)
	}
}

// approvalData is the persisted document.
type approvalData struct {
	Version  int                 `json:"version"`
	Patterns map[string]*Pattern `json:"patterns"`
	Config   RecorderConfig      `json:"config"`
}

// Request is everything the approval surface needs to present a decision.
type Request struct {
	RequestID string         `json:"request_id"`
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args"`
	Stats     *Pattern       `json:"current_stats,omitempty"`
	CanLearn  bool           `json:"can_learn"`
	RiskLevel RiskLevel      `json:"risk_level"`
}

// Recorder tracks approval decisions and learns per-tool patterns.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	data   approvalData
	path   string
	logger *slog.Logger
}

// NewRecorder loads (or initializes) pattern state under storageDir.
func NewRecorder(storageDir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(storageDir, PatternsFileName)
	data := approvalData{Version: dataVersion, Patterns: map[string]*Pattern{}, Config: DefaultRecorderConfig()}
	if raw, err := os.ReadFile(path); err == nil {
		var loaded approvalData
		if err := json.Unmarshal(raw, &loaded); err != nil {
			logger.Warn("failed to parse approval patterns, starting fresh", "path", path, "error", err)
		} else {
			if loaded.Patterns == nil {
				loaded.Patterns = map[string]*Pattern{}
			}
			data = loaded
		}
	}
	return &Recorder{data: data, path: path, logger: logger}
}

// ShouldAutoApprove decides whether a tool runs without asking. Order of
// precedence: always-allow list, always-require list, learning switch, the
// pattern's hard always-allow flag, then the learned thresholds.
func (r *Recorder) ShouldAutoApprove(tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if contains(r.data.Config.AlwaysAllow, tool) {
		return true
	}
	if contains(r.data.Config.AlwaysRequireApproval, tool) {
		return false
	}
	if !r.data.Config.PatternLearningEnabled {
		return false
	}
	pattern, ok := r.data.Patterns[tool]
	if !ok {
		return false
	}
	if pattern.AlwaysAllow {
		return true
	}
	return pattern.Qualifies(r.data.Config.MinApprovals, r.data.Config.ApprovalThreshold)
}

// RecordDecision stores one human decision and persists. alwaysAllow only
// sticks on an approval.
func (r *Recorder) RecordDecision(tool string, approved bool, reason string, alwaysAllow bool) error {
	r.mu.Lock()
	pattern, ok := r.data.Patterns[tool]
	if !ok {
		pattern = &Pattern{ToolName: tool}
		r.data.Patterns[tool] = pattern
	}
	pattern.recordDecision(approved, reason)
	if alwaysAllow && approved {
		pattern.AlwaysAllow = true
	}
	r.mu.Unlock()
	return r.save()
}

// GetPattern returns a copy of the pattern for a tool.
func (r *Recorder) GetPattern(tool string) (Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.data.Patterns[tool]
	if !ok {
		return Pattern{}, false
	}
	return clonePattern(p), true
}

// AllPatterns returns copies of every learned pattern.
func (r *Recorder) AllPatterns() []Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pattern, 0, len(r.data.Patterns))
	for _, p := range r.data.Patterns {
		out = append(out, clonePattern(p))
	}
	return out
}

func clonePattern(p *Pattern) Pattern {
	cp := *p
	cp.Justifications = append([]string(nil), p.Justifications...)
	return cp
}

// Config returns the active learning configuration.
func (r *Recorder) Config() RecorderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg := r.data.Config
	cfg.AlwaysAllow = append([]string(nil), cfg.AlwaysAllow...)
	cfg.AlwaysRequireApproval = append([]string(nil), cfg.AlwaysRequireApproval...)
	return cfg
}

// SetConfig replaces the learning configuration and persists.
func (r *Recorder) SetConfig(cfg RecorderConfig) error {
	r.mu.Lock()
	r.data.Config = cfg
	r.mu.Unlock()
	return r.save()
}

// AddAlwaysAllow puts a tool on the always-allow list, removing it from the
// always-require list if present.
func (r *Recorder) AddAlwaysAllow(tool string) error {
	r.mu.Lock()
	if !contains(r.data.Config.AlwaysAllow, tool) {
		r.data.Config.AlwaysAllow = append(r.data.Config.AlwaysAllow, tool)
	}
	r.data.Config.AlwaysRequireApproval = remove(r.data.Config.AlwaysRequireApproval, tool)
	r.mu.Unlock()
	return r.save()
}

// RemoveAlwaysAllow takes a tool off the always-allow list and clears the
// pattern's hard flag.
func (r *Recorder) RemoveAlwaysAllow(tool string) error {
	r.mu.Lock()
	r.data.Config.AlwaysAllow = remove(r.data.Config.AlwaysAllow, tool)
	if p, ok := r.data.Patterns[tool]; ok {
		p.AlwaysAllow = false
	}
	r.mu.Unlock()
	return r.save()
}

// ResetPatterns clears all learned patterns, keeping configuration.
func (r *Recorder) ResetPatterns() error {
	r.mu.Lock()
	r.data.Patterns = map[string]*Pattern{}
	r.mu.Unlock()
	return r.save()
}

// CreateRequest assembles the payload presented to the approval surface.
func (r *Recorder) CreateRequest(requestID, tool string, args map[string]any) Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stats *Pattern
	if p, ok := r.data.Patterns[tool]; ok {
		cp := clonePattern(p)
		stats = &cp
	}
	return Request{
		RequestID: requestID,
		ToolName:  tool,
		Args:      args,
		Stats:     stats,
		CanLearn:  !contains(r.data.Config.AlwaysRequireApproval, tool),
		RiskLevel: RiskForTool(tool),
	}
}

// Suggestion returns a nudge when a tool is close to qualifying for
// auto-approval, or "" when there is nothing useful to say.
func (r *Recorder) Suggestion(tool string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.data.Config.PatternLearningEnabled {
		return ""
	}
	pattern, ok := r.data.Patterns[tool]
	if !ok {
		return ""
	}
	min := r.data.Config.MinApprovals
	threshold := r.data.Config.ApprovalThreshold
	if pattern.Qualifies(min, threshold) {
		return ""
	}
	rate := pattern.ApprovalRate()
	if pattern.Approvals < 2 || rate < 0.6 {
		return ""
	}
	if needed := min - pattern.Approvals; needed > 0 {
		return fmt.Sprintf("You've approved '%s' %d times (%.0f%% approval rate). %d more approval(s) needed for auto-approve.",
			tool, pattern.Approvals, rate*100, needed)
	}
	if rate < threshold {
		return fmt.Sprintf("Tool '%s' has %d approvals but only %.0f%% approval rate. Need %.0f%% for auto-approve.",
			tool, pattern.Approvals, rate*100, threshold*100)
	}
	return ""
}

func (r *Recorder) save() error {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.data, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal approval patterns: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create approval storage dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write approval patterns %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename approval patterns into place: %w", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
