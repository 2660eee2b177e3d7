// Package subagent manages specialized child agents and runs them with a
// bounded depth and iteration budget.
package subagent

import (
	"sort"
	"sync"
)

const (
	// DefaultMaxIterations bounds a run when a definition does not set its
	// own limit.
	DefaultMaxIterations = 50
	// MaxAgentDepth bounds how deep sub-agents may spawn further
	// sub-agents. The root agent runs at depth 0.
	MaxAgentDepth = 5
	// ToolPrefix marks a tool call as a sub-agent dispatch.
	ToolPrefix = "sub_agent_"
)

// Definition describes one sub-agent.
type Definition struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	SystemPrompt  string   `json:"system_prompt"`
	AllowedTools  []string `json:"allowed_tools,omitempty"`
	MaxIterations int      `json:"max_iterations"`
}

// NewDefinition creates a definition with the default iteration budget.
func NewDefinition(id, name, description, systemPrompt string) Definition {
	return Definition{
		ID:            id,
		Name:          name,
		Description:   description,
		SystemPrompt:  systemPrompt,
		MaxIterations: DefaultMaxIterations,
	}
}

// WithTools restricts the definition to the named tools. An empty list means
// every registered tool is available.
func (d Definition) WithTools(tools ...string) Definition {
	d.AllowedTools = tools
	return d
}

// WithMaxIterations overrides the iteration budget.
func (d Definition) WithMaxIterations(n int) Definition {
	if n > 0 {
		d.MaxIterations = n
	}
	return d
}

// ToolName returns the dispatch tool name for this agent.
func (d Definition) ToolName() string { return ToolPrefix + d.ID }

// AllowsTool reports whether the definition permits a tool.
func (d Definition) AllowsTool(name string) bool {
	if len(d.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range d.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// Registry holds sub-agent definitions. Registering an ID twice replaces the
// earlier definition. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Definition)}
}

// DefaultRegistry returns a registry with the stock agent roster.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewDefinition("code_analyzer", "Code Analyzer",
		"Analyzes code structure, quality and potential issues.",
		"You are a code analysis specialist. Examine the given code for structure, correctness and quality issues. Report findings concisely.").
		WithTools("read_file", "grep_file", "list_files").
		WithMaxIterations(30))
	r.Register(NewDefinition("code_explorer", "Code Explorer",
		"Explores a codebase to locate relevant files and symbols.",
		"You are a codebase navigation specialist. Find the files, functions and types relevant to the given task and summarize where they live.").
		WithTools("read_file", "grep_file", "list_files").
		WithMaxIterations(40))
	r.Register(NewDefinition("code_writer", "Code Writer",
		"Writes and edits code to complete an implementation task.",
		"You are an implementation specialist. Make the requested code changes, keeping edits minimal and consistent with the surrounding code.").
		WithTools("read_file", "grep_file", "list_files", "write_file", "edit_file").
		WithMaxIterations(50))
	r.Register(NewDefinition("researcher", "Researcher",
		"Gathers information from documentation and the web.",
		"You are a research specialist. Collect the information needed for the given question and answer with sources.").
		WithTools("read_file", "web_fetch").
		WithMaxIterations(25))
	r.Register(NewDefinition("shell_executor", "Shell Executor",
		"Runs shell commands to build, test or inspect the project.",
		"You are a command execution specialist. Run the commands needed for the given task and report their output.").
		WithTools("read_file", "list_files", "execute_code").
		WithMaxIterations(30))
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) {
	if def.MaxIterations <= 0 {
		def.MaxIterations = DefaultMaxIterations
	}
	r.mu.Lock()
	r.agents[def.ID] = def
	r.mu.Unlock()
}

// Get returns a definition by ID.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[id]
	return def, ok
}

// List returns all definitions sorted by ID.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.agents))
	for _, def := range r.agents {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all registered agent IDs sorted.
func (r *Registry) IDs() []string {
	defs := r.List()
	ids := make([]string, len(defs))
	for i, def := range defs {
		ids[i] = def.ID
	}
	return ids
}
