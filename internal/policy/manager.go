package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ConfigVersion allows future migrations of persisted policy files.
const ConfigVersion = 1

// PolicyFileName is the on-disk policy file, present at both the global and
// project tier.
const PolicyFileName = "tool-policy.json"

// Config is the persisted policy document.
type Config struct {
	Version        int                    `json:"version"`
	AvailableTools []string               `json:"available_tools"`
	Policies       map[string]Policy      `json:"policies"`
	Constraints    map[string]Constraints `json:"constraints"`
	DefaultPolicy  Policy                 `json:"default_policy"`
}

// DefaultConfig returns the stock policy table: read-only tools allowed,
// mutating tools prompted, destructive tools denied.
func DefaultConfig() Config {
	policies := map[string]Policy{}
	for _, tool := range []string{
		"read_file", "grep_file", "list_files",
		"indexer_search_code", "indexer_search_files", "indexer_analyze_file",
		"indexer_extract_symbols", "indexer_get_metrics", "indexer_detect_language",
		"debug_agent", "analyze_agent", "get_errors", "update_plan",
		"list_skills", "search_skills", "load_skill", "search_tools",
	} {
		policies[tool] = Allow
	}
	for _, tool := range []string{
		"write_file", "create_file", "edit_file", "apply_patch",
		"save_skill", "web_fetch", "create_pty_session", "send_pty_input",
	} {
		policies[tool] = Prompt
	}
	for _, tool := range []string{"delete_file", "execute_code"} {
		policies[tool] = Deny
	}

	writeGuard := Constraints{
		BlockedPatterns: []string{"*.env", "*.key", "*.pem", "**/credentials*", "**/secrets*"},
	}
	constraints := map[string]Constraints{
		"web_fetch": {
			MaxBytes:     65536,
			BlockedHosts: []string{"127.0.0.1", "::1", "localhost", ".local", ".internal", ".lan"},
		},
		"write_file": writeGuard,
		"edit_file":  writeGuard,
	}

	return Config{
		Version:       ConfigVersion,
		Policies:      policies,
		Constraints:   constraints,
		DefaultPolicy: DefaultPolicy,
	}
}

// ConstraintVerdict is the outcome of applying constraints to a tool call.
type ConstraintVerdict int

const (
	// ConstraintAllowed means the call passes untouched.
	ConstraintAllowed ConstraintVerdict = iota
	// ConstraintViolated means the call must not run.
	ConstraintViolated
	// ConstraintModified means the call runs with adjusted arguments.
	ConstraintModified
)

// ConstraintResult carries the verdict, the (possibly adjusted) arguments and
// a human-readable reason.
type ConstraintResult struct {
	Verdict ConstraintVerdict
	Args    map[string]any
	Reason  string
}

// Manager holds policy for one workspace, merged from a global file
// (~/.agentcore/tool-policy.json) and a project file
// ({workspace}/.agentcore/tool-policy.json); project entries win.
// Safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	cfg         Config
	globalPath  string
	projectPath string
	preapproved map[string]bool
	// fullAuto, when non-nil, short-circuits listed tools to Allow.
	fullAuto map[string]bool
	logger   *slog.Logger
}

// NewManager loads policy for a workspace.
func NewManager(workspace string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	globalPath := GlobalPolicyPath()
	projectPath := filepath.Join(workspace, ".agentcore", PolicyFileName)

	global := loadConfigFile(globalPath, logger)
	project := loadConfigFile(projectPath, logger)

	return &Manager{
		cfg:         mergeConfigs(global, project),
		globalPath:  globalPath,
		projectPath: projectPath,
		preapproved: map[string]bool{},
		logger:      logger,
	}
}

// NewManagerWithConfig builds a manager around an explicit config, mainly for
// tests.
func NewManagerWithConfig(cfg Config, projectPath string) *Manager {
	return &Manager{
		cfg:         cfg,
		globalPath:  GlobalPolicyPath(),
		projectPath: projectPath,
		preapproved: map[string]bool{},
		logger:      slog.Default(),
	}
}

// GlobalPolicyPath returns ~/.agentcore/tool-policy.json.
func GlobalPolicyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agentcore", PolicyFileName)
}

func loadConfigFile(path string, logger *slog.Logger) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		logger.Warn("failed to parse tool policy config", "path", path, "error", err)
		return nil
	}
	return &cfg
}

func mergeConfigs(global, project *Config) Config {
	merged := DefaultConfig()
	for _, layer := range []*Config{global, project} {
		if layer == nil {
			continue
		}
		for tool, pol := range layer.Policies {
			merged.Policies[tool] = pol
		}
		for tool, cons := range layer.Constraints {
			merged.Constraints[tool] = cons
		}
		if layer.DefaultPolicy != "" {
			merged.DefaultPolicy = layer.DefaultPolicy
		}
		for _, tool := range layer.AvailableTools {
			if !contains(merged.AvailableTools, tool) {
				merged.AvailableTools = append(merged.AvailableTools, tool)
			}
		}
	}
	return merged
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetPolicy returns the effective policy for a tool. The full-auto allowlist
// is consulted before the policy table.
func (m *Manager) GetPolicy(tool string) Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fullAuto != nil && m.fullAuto[tool] {
		return Allow
	}
	if pol, ok := m.cfg.Policies[tool]; ok {
		return pol
	}
	return m.cfg.DefaultPolicy
}

// SetPolicy updates one tool's policy and persists the project file.
func (m *Manager) SetPolicy(tool string, pol Policy) error {
	m.mu.Lock()
	m.cfg.Policies[tool] = pol
	m.mu.Unlock()
	return m.SaveProject()
}

// GetConstraints returns the constraints for a tool, if any.
func (m *Manager) GetConstraints(tool string) (Constraints, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cfg.Constraints[tool]
	return c, ok
}

// SetConstraints updates one tool's constraints and persists the project file.
func (m *Manager) SetConstraints(tool string, c Constraints) error {
	m.mu.Lock()
	m.cfg.Constraints[tool] = c
	m.mu.Unlock()
	return m.SaveProject()
}

// ApplyConstraints checks a tool call's arguments against the tool's
// constraints. Over-limit "limit" arguments are clamped rather than refused.
func (m *Manager) ApplyConstraints(tool string, args map[string]any) ConstraintResult {
	m.mu.RLock()
	cons, ok := m.cfg.Constraints[tool]
	m.mu.RUnlock()
	if !ok {
		return ConstraintResult{Verdict: ConstraintAllowed, Args: args}
	}

	if url, ok := args["url"].(string); ok {
		if reason := cons.URLBlocked(url); reason != "" {
			return ConstraintResult{Verdict: ConstraintViolated, Reason: reason}
		}
	}
	for _, field := range []string{"path", "file_path", "file", "target"} {
		if path, ok := args[field].(string); ok {
			if reason := cons.PathBlocked(path); reason != "" {
				return ConstraintResult{Verdict: ConstraintViolated, Reason: reason}
			}
		}
	}
	if mode, ok := args["mode"].(string); ok && !cons.ModeAllowed(mode) {
		return ConstraintResult{Verdict: ConstraintViolated, Reason: fmt.Sprintf("mode %q is not allowed", mode)}
	}
	if cons.MaxItems > 0 {
		if limit, ok := numericArg(args["limit"]); ok && limit > uint64(cons.MaxItems) {
			modified := make(map[string]any, len(args))
			for k, v := range args {
				modified[k] = v
			}
			modified["limit"] = cons.MaxItems
			return ConstraintResult{
				Verdict: ConstraintModified,
				Args:    modified,
				Reason:  fmt.Sprintf("limit reduced from %d to %d per policy constraint", limit, cons.MaxItems),
			}
		}
	}
	return ConstraintResult{Verdict: ConstraintAllowed, Args: args}
}

func numericArg(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// ShouldExecute reports whether a tool may run without prompting.
func (m *Manager) ShouldExecute(tool string) bool {
	m.mu.RLock()
	pre := m.preapproved[tool]
	m.mu.RUnlock()
	if pre {
		return true
	}
	return m.GetPolicy(tool) == Allow
}

// RequiresPrompt reports whether a tool needs human confirmation.
func (m *Manager) RequiresPrompt(tool string) bool {
	m.mu.RLock()
	pre := m.preapproved[tool]
	m.mu.RUnlock()
	if pre {
		return false
	}
	return m.GetPolicy(tool) == Prompt
}

// IsDenied reports whether a tool must not run.
func (m *Manager) IsDenied(tool string) bool {
	return m.GetPolicy(tool) == Deny
}

// Preapprove grants a one-shot approval for this session.
func (m *Manager) Preapprove(tool string) {
	m.mu.Lock()
	m.preapproved[tool] = true
	m.mu.Unlock()
}

// TakePreapproved consumes a pre-approval, reporting whether one existed.
func (m *Manager) TakePreapproved(tool string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.preapproved[tool] {
		delete(m.preapproved, tool)
		return true
	}
	return false
}

// EnableFullAuto turns on full-auto mode for the listed tools.
func (m *Manager) EnableFullAuto(tools []string) {
	allow := make(map[string]bool, len(tools))
	for _, t := range tools {
		allow[t] = true
	}
	m.mu.Lock()
	m.fullAuto = allow
	m.mu.Unlock()
	m.logger.Info("full-auto mode enabled", "tools", len(tools))
}

// DisableFullAuto turns full-auto mode off.
func (m *Manager) DisableFullAuto() {
	m.mu.Lock()
	m.fullAuto = nil
	m.mu.Unlock()
	m.logger.Info("full-auto mode disabled")
}

// IsFullAutoEnabled reports whether full-auto mode is active.
func (m *Manager) IsFullAutoEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fullAuto != nil
}

// SyncAvailableTools records the registry's tool list and persists it.
func (m *Manager) SyncAvailableTools(tools []string) error {
	m.mu.Lock()
	m.cfg.AvailableTools = tools
	m.mu.Unlock()
	return m.SaveProject()
}

// Config returns a copy of the merged configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

func (c Config) clone() Config {
	out := c
	out.Policies = make(map[string]Policy, len(c.Policies))
	for k, v := range c.Policies {
		out.Policies[k] = v
	}
	out.Constraints = make(map[string]Constraints, len(c.Constraints))
	for k, v := range c.Constraints {
		out.Constraints[k] = v
	}
	out.AvailableTools = append([]string(nil), c.AvailableTools...)
	return out
}

// AllowAll sets every known tool, and the default, to allow. Persists.
func (m *Manager) AllowAll() error { return m.setAll(Allow) }

// DenyAll sets every known tool, and the default, to deny. Persists.
func (m *Manager) DenyAll() error { return m.setAll(Deny) }

func (m *Manager) setAll(pol Policy) error {
	m.mu.Lock()
	for _, tool := range m.cfg.AvailableTools {
		m.cfg.Policies[tool] = pol
	}
	m.cfg.DefaultPolicy = pol
	m.mu.Unlock()
	return m.SaveProject()
}

// ResetToPrompt clears all per-tool policies and restores the prompt default.
func (m *Manager) ResetToPrompt() error {
	m.mu.Lock()
	m.cfg.Policies = map[string]Policy{}
	m.cfg.DefaultPolicy = Prompt
	m.mu.Unlock()
	return m.SaveProject()
}

// SaveProject writes the merged config to the project policy file atomically.
func (m *Manager) SaveProject() error {
	return m.saveTo(m.projectPath)
}

// SaveGlobal writes the merged config to the global policy file atomically.
func (m *Manager) SaveGlobal() error {
	return m.saveTo(m.globalPath)
}

func (m *Manager) saveTo(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal tool policy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tool policy %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tool policy into place: %w", err)
	}
	return nil
}

// Reload re-reads both policy files and re-merges.
func (m *Manager) Reload() error {
	global := loadConfigFile(m.globalPath, m.logger)
	project := loadConfigFile(m.projectPath, m.logger)
	merged := mergeConfigs(global, project)
	m.mu.Lock()
	m.cfg = merged
	m.mu.Unlock()
	m.logger.Debug("reloaded tool policy", "global", global != nil, "project", project != nil)
	return nil
}

// ProjectPolicyPath returns the project policy file path.
func (m *Manager) ProjectPolicyPath() string { return m.projectPath }
