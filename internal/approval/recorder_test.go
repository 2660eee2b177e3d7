package approval

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testRecorder(t *testing.T) *Recorder {
	t.Helper()
	return NewRecorder(t.TempDir(), nil)
}

func TestAlwaysAllowList(t *testing.T) {
	r := testRecorder(t)
	if !r.ShouldAutoApprove("read_file") {
		t.Error("read_file should auto-approve from the always-allow list")
	}
	if r.ShouldAutoApprove("write_file") {
		t.Error("write_file should not auto-approve without history")
	}
}

func TestAlwaysRequireBeatsLearning(t *testing.T) {
	r := testRecorder(t)
	for i := 0; i < 20; i++ {
		if err := r.RecordDecision("delete_file", true, "", false); err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}
	if r.ShouldAutoApprove("delete_file") {
		t.Fatal("delete_file auto-approved despite always-require list")
	}
}

func TestQualificationThresholds(t *testing.T) {
	r := testRecorder(t)
	tool := "custom_build"

	// 7 approvals / 2 denials: rate 7/9 ≈ 0.78, below 0.8.
	for i := 0; i < 7; i++ {
		_ = r.RecordDecision(tool, true, "", false)
	}
	for i := 0; i < 2; i++ {
		_ = r.RecordDecision(tool, false, "", false)
	}
	if r.ShouldAutoApprove(tool) {
		t.Fatal("7/2 should not qualify (77.8% < 80%)")
	}

	// One more approval: 8/10 = exactly 0.8, which qualifies.
	_ = r.RecordDecision(tool, true, "", false)
	if !r.ShouldAutoApprove(tool) {
		t.Fatal("8/2 should qualify (80% >= 80%)")
	}
}

func TestMinApprovalsFloor(t *testing.T) {
	r := testRecorder(t)
	// 2 approvals, perfect rate, still below the floor of 3.
	_ = r.RecordDecision("fmt_tool", true, "", false)
	_ = r.RecordDecision("fmt_tool", true, "", false)
	if r.ShouldAutoApprove("fmt_tool") {
		t.Fatal("2 approvals should not clear the minimum of 3")
	}
	_ = r.RecordDecision("fmt_tool", true, "", false)
	if !r.ShouldAutoApprove("fmt_tool") {
		t.Fatal("3 approvals at 100% should qualify")
	}
}

func TestHardAlwaysAllowOverride(t *testing.T) {
	r := testRecorder(t)
	tool := "deploy_tool"
	// Mostly denials, but the user checked "always allow" on an approval.
	for i := 0; i < 5; i++ {
		_ = r.RecordDecision(tool, false, "", false)
	}
	_ = r.RecordDecision(tool, true, "", true)
	if !r.ShouldAutoApprove(tool) {
		t.Fatal("hard always-allow flag should override the thresholds")
	}

	if err := r.RemoveAlwaysAllow(tool); err != nil {
		t.Fatalf("RemoveAlwaysAllow: %v", err)
	}
	if r.ShouldAutoApprove(tool) {
		t.Fatal("auto-approve should stop after the flag is cleared")
	}
}

func TestAlwaysAllowDeniedDecisionDoesNotStick(t *testing.T) {
	r := testRecorder(t)
	_ = r.RecordDecision("risky", false, "", true)
	if r.ShouldAutoApprove("risky") {
		t.Fatal("always-allow on a denial must not stick")
	}
}

func TestLearningDisabled(t *testing.T) {
	r := testRecorder(t)
	cfg := r.Config()
	cfg.PatternLearningEnabled = false
	if err := r.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	for i := 0; i < 10; i++ {
		_ = r.RecordDecision("build_tool", true, "", false)
	}
	if r.ShouldAutoApprove("build_tool") {
		t.Fatal("learning disabled: nothing should qualify")
	}
	// The always-allow list still works.
	if !r.ShouldAutoApprove("read_file") {
		t.Fatal("always-allow list should survive learning being disabled")
	}
}

func TestJustificationsCapped(t *testing.T) {
	r := testRecorder(t)
	for i := 0; i < 15; i++ {
		_ = r.RecordDecision("t", true, strings.Repeat("x", i+1), false)
	}
	p, ok := r.GetPattern("t")
	if !ok {
		t.Fatal("pattern missing")
	}
	if len(p.Justifications) != 10 {
		t.Fatalf("justifications = %d, want 10", len(p.Justifications))
	}
	// Oldest entries dropped first.
	if len(p.Justifications[0]) != 6 {
		t.Fatalf("oldest kept justification length = %d, want 6", len(p.Justifications[0]))
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, nil)
	for i := 0; i < 4; i++ {
		if err := r.RecordDecision("persisted_tool", true, "fine", false); err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, PatternsFileName)); err != nil {
		t.Fatalf("patterns file not written: %v", err)
	}

	fresh := NewRecorder(dir, nil)
	if !fresh.ShouldAutoApprove("persisted_tool") {
		t.Fatal("pattern did not survive reload")
	}
	p, ok := fresh.GetPattern("persisted_tool")
	if !ok || p.Approvals != 4 {
		t.Fatalf("reloaded pattern = %+v, ok=%v", p, ok)
	}
}

func TestSuggestionNearThreshold(t *testing.T) {
	r := testRecorder(t)
	_ = r.RecordDecision("lint_tool", true, "", false)
	_ = r.RecordDecision("lint_tool", true, "", false)

	msg := r.Suggestion("lint_tool")
	if msg == "" {
		t.Fatal("expected a suggestion at 2 approvals")
	}
	if !strings.Contains(msg, "1 more approval") {
		t.Errorf("suggestion = %q, want the remaining count", msg)
	}

	_ = r.RecordDecision("lint_tool", true, "", false)
	if msg := r.Suggestion("lint_tool"); msg != "" {
		t.Errorf("qualified tool still gets suggestion: %q", msg)
	}
}

func TestCreateRequestFields(t *testing.T) {
	r := testRecorder(t)
	_ = r.RecordDecision("write_file", true, "", false)

	req := r.CreateRequest("req-1", "write_file", map[string]any{"path": "x.go"})
	if req.RiskLevel != RiskMedium {
		t.Errorf("risk = %v, want medium", req.RiskLevel)
	}
	if !req.CanLearn {
		t.Error("write_file should be learnable")
	}
	if req.Stats == nil || req.Stats.Approvals != 1 {
		t.Errorf("stats = %+v", req.Stats)
	}

	req = r.CreateRequest("req-2", "delete_file", nil)
	if req.CanLearn {
		t.Error("delete_file must not be learnable")
	}
	if req.RiskLevel != RiskCritical {
		t.Errorf("delete_file risk = %v, want critical", req.RiskLevel)
	}
}

func TestRiskLadder(t *testing.T) {
	cases := map[string]RiskLevel{
		"read_file":        RiskLow,
		"web_fetch":        RiskLow,
		"write_file":       RiskMedium,
		"apply_patch":      RiskMedium,
		"run_pty_cmd":      RiskHigh,
		"delete_file":      RiskCritical,
		"execute_code":     RiskCritical,
		"sub_agent_writer": RiskMedium,
		"mystery_tool":     RiskHigh,
	}
	for tool, want := range cases {
		if got := RiskForTool(tool); got != want {
			t.Errorf("RiskForTool(%s) = %v, want %v", tool, got, want)
		}
	}
}
