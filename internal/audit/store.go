// Package audit persists the governance trail: approval decisions, context
// events, loop verdicts and sub-agent runs.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed audit trail. Safe for concurrent use; database/sql
// serializes access per connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenDB wraps an existing database handle, applying the schema. Used by
// tests that want an in-memory database.
func OpenDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// InsertApproval records a new pending approval request.
func (s *Store) InsertApproval(rec *ApprovalRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO approvals (approval_id, trace_id, session_id, tool, risk_level, args_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`,
		rec.ApprovalID, rec.TraceID, rec.SessionID, rec.Tool, rec.RiskLevel, rec.ArgsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// ResolveApproval updates an approval's terminal status.
func (s *Store) ResolveApproval(approvalID, status string) error {
	_, err := s.db.Exec(`UPDATE approvals SET status = ?, resolved_at = ? WHERE approval_id = ?`,
		status, time.Now().UTC(), approvalID)
	if err != nil {
		return fmt.Errorf("resolve approval %s: %w", approvalID, err)
	}
	return nil
}

// PendingApprovals lists unresolved approval requests.
func (s *Store) PendingApprovals() ([]ApprovalRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, approval_id, COALESCE(trace_id,''), COALESCE(session_id,''), tool, risk_level,
		       COALESCE(args_json,''), status, created_at
		FROM approvals WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending approvals: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRecord
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.ID, &rec.ApprovalID, &rec.TraceID, &rec.SessionID,
			&rec.Tool, &rec.RiskLevel, &rec.ArgsJSON, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApprovalsForTool lists the decision history for one tool, newest first.
func (s *Store) ApprovalsForTool(tool string, limit int) ([]ApprovalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, approval_id, COALESCE(trace_id,''), COALESCE(session_id,''), tool, risk_level,
		       COALESCE(args_json,''), status, created_at
		FROM approvals WHERE tool = ? ORDER BY created_at DESC LIMIT ?`, tool, limit)
	if err != nil {
		return nil, fmt.Errorf("query approvals for %s: %w", tool, err)
	}
	defer rows.Close()

	var out []ApprovalRecord
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.ID, &rec.ApprovalID, &rec.TraceID, &rec.SessionID,
			&rec.Tool, &rec.RiskLevel, &rec.ArgsJSON, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordContextEvent stores one context-management event.
func (s *Store) RecordContextEvent(rec *ContextEventRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO context_events (session_id, kind, tokens_before, tokens_after, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Kind, rec.TokensBefore, rec.TokensAfter, rec.Detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record context event: %w", err)
	}
	return nil
}

// ContextEvents lists context events for a session, oldest first.
func (s *Store) ContextEvents(sessionID string, limit int) ([]ContextEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, kind, tokens_before, tokens_after, COALESCE(detail,''), timestamp
		FROM context_events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query context events: %w", err)
	}
	defer rows.Close()

	var out []ContextEventRecord
	for rows.Next() {
		var rec ContextEventRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Kind, &rec.TokensBefore,
			&rec.TokensAfter, &rec.Detail, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan context event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordLoopEvent stores one loop-detector verdict.
func (s *Store) RecordLoopEvent(rec *LoopEventRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO loop_events (session_id, tool, verdict, repeat_count, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Tool, rec.Verdict, rec.RepeatCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record loop event: %w", err)
	}
	return nil
}

// StartSubagentRun records the start of a sub-agent execution.
func (s *Store) StartSubagentRun(rec *SubagentRunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO subagent_runs (run_id, agent_id, parent_id, depth, task, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.AgentID, rec.ParentID, rec.Depth, rec.Task, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("start subagent run: %w", err)
	}
	return nil
}

// FinishSubagentRun records a sub-agent run's outcome.
func (s *Store) FinishSubagentRun(runID string, success bool, durationMS int64, iterations int) error {
	_, err := s.db.Exec(`
		UPDATE subagent_runs SET success = ?, duration_ms = ?, iterations = ?, finished_at = ?
		WHERE run_id = ?`,
		success, durationMS, iterations, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finish subagent run %s: %w", runID, err)
	}
	return nil
}

// SubagentRuns lists runs for an agent, newest first.
func (s *Store) SubagentRuns(agentID string, limit int) ([]SubagentRunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, agent_id, COALESCE(parent_id,''), depth, COALESCE(task,''),
		       success, duration_ms, iterations, started_at
		FROM subagent_runs WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query subagent runs: %w", err)
	}
	defer rows.Close()

	var out []SubagentRunRecord
	for rows.Next() {
		var rec SubagentRunRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.AgentID, &rec.ParentID, &rec.Depth,
			&rec.Task, &rec.Success, &rec.DurationMS, &rec.Iterations, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("scan subagent run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSetting returns a settings value, or "" when unset.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
