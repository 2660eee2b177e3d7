package audit

import "time"

// ApprovalRecord is one row in the approval trail.
type ApprovalRecord struct {
	ID         int64      `json:"id"`
	ApprovalID string     `json:"approval_id"`
	TraceID    string     `json:"trace_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Tool       string     `json:"tool"`
	RiskLevel  string     `json:"risk_level"`
	ArgsJSON   string     `json:"args_json,omitempty"`
	Status     string     `json:"status"` // pending, approved, denied, timeout, cancelled
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ContextEventRecord is one recorded context-management event.
type ContextEventRecord struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Kind         string    `json:"kind"`
	TokensBefore int       `json:"tokens_before"`
	TokensAfter  int       `json:"tokens_after"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// LoopEventRecord is one loop-detector verdict worth keeping.
type LoopEventRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Tool        string    `json:"tool"`
	Verdict     string    `json:"verdict"`
	RepeatCount int       `json:"repeat_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubagentRunRecord tracks one sub-agent execution.
type SubagentRunRecord struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	AgentID    string     `json:"agent_id"`
	ParentID   string     `json:"parent_id,omitempty"`
	Depth      int        `json:"depth"`
	Task       string     `json:"task,omitempty"`
	Success    bool       `json:"success"`
	DurationMS int64      `json:"duration_ms"`
	Iterations int        `json:"iterations"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Schema is applied on open. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS approvals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	approval_id TEXT NOT NULL UNIQUE,
	trace_id TEXT,
	session_id TEXT,
	tool TEXT NOT NULL,
	risk_level TEXT NOT NULL DEFAULT 'high',
	args_json TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	resolved_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_approvals_tool ON approvals(tool);

CREATE TABLE IF NOT EXISTS context_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	tokens_before INTEGER NOT NULL DEFAULT 0,
	tokens_after INTEGER NOT NULL DEFAULT 0,
	detail TEXT,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_context_events_session ON context_events(session_id);

CREATE TABLE IF NOT EXISTS loop_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	verdict TEXT NOT NULL,
	repeat_count INTEGER NOT NULL DEFAULT 0,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_loop_events_session ON loop_events(session_id);

CREATE TABLE IF NOT EXISTS subagent_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	agent_id TEXT NOT NULL,
	parent_id TEXT,
	depth INTEGER NOT NULL DEFAULT 0,
	task TEXT,
	success BOOLEAN NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	iterations INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_subagent_runs_agent ON subagent_runs(agent_id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
