package audit

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func memStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := OpenDB(db)
	if err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return s
}

func TestApprovalLifecycle(t *testing.T) {
	s := memStore(t)
	rec := &ApprovalRecord{
		ApprovalID: "appr-1",
		Tool:       "write_file",
		RiskLevel:  "medium",
		ArgsJSON:   `{"path":"main.go"}`,
	}
	if err := s.InsertApproval(rec); err != nil {
		t.Fatalf("InsertApproval: %v", err)
	}

	pending, err := s.PendingApprovals()
	if err != nil {
		t.Fatalf("PendingApprovals: %v", err)
	}
	if len(pending) != 1 || pending[0].ApprovalID != "appr-1" || pending[0].Status != "pending" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := s.ResolveApproval("appr-1", "approved"); err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	pending, err = s.PendingApprovals()
	if err != nil {
		t.Fatalf("PendingApprovals: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("still pending after resolve: %+v", pending)
	}

	hist, err := s.ApprovalsForTool("write_file", 10)
	if err != nil {
		t.Fatalf("ApprovalsForTool: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != "approved" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestContextAndLoopEvents(t *testing.T) {
	s := memStore(t)
	err := s.RecordContextEvent(&ContextEventRecord{
		SessionID: "sess-1", Kind: "context_pruned",
		TokensBefore: 9000, TokensAfter: 5000, Detail: "pruned 12 messages",
	})
	if err != nil {
		t.Fatalf("RecordContextEvent: %v", err)
	}
	events, err := s.ContextEvents("sess-1", 10)
	if err != nil {
		t.Fatalf("ContextEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "context_pruned" || events[0].TokensAfter != 5000 {
		t.Fatalf("events = %+v", events)
	}

	if err := s.RecordLoopEvent(&LoopEventRecord{SessionID: "sess-1", Tool: "grep_file", Verdict: "warning", RepeatCount: 3}); err != nil {
		t.Fatalf("RecordLoopEvent: %v", err)
	}
}

func TestSubagentRunRoundTrip(t *testing.T) {
	s := memStore(t)
	err := s.StartSubagentRun(&SubagentRunRecord{
		RunID: "run-1", AgentID: "code_analyzer", ParentID: "main", Depth: 1, Task: "review diff",
	})
	if err != nil {
		t.Fatalf("StartSubagentRun: %v", err)
	}
	if err := s.FinishSubagentRun("run-1", true, 1234, 7); err != nil {
		t.Fatalf("FinishSubagentRun: %v", err)
	}
	runs, err := s.SubagentRuns("code_analyzer", 10)
	if err != nil {
		t.Fatalf("SubagentRuns: %v", err)
	}
	if len(runs) != 1 || !runs[0].Success || runs[0].DurationMS != 1234 || runs[0].Iterations != 7 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestSettings(t *testing.T) {
	s := memStore(t)
	if v, err := s.GetSetting("missing"); err != nil || v != "" {
		t.Fatalf("GetSetting missing = %q, %v", v, err)
	}
	if err := s.SetSetting("mode", "full_auto"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting("mode", "manual"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, err := s.GetSetting("mode")
	if err != nil || v != "manual" {
		t.Fatalf("GetSetting = %q, %v", v, err)
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.SetSetting("k", "v"); err != nil {
		t.Fatalf("SetSetting on disk: %v", err)
	}
}
