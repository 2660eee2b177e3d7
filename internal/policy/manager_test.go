package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManagerWithConfig(DefaultConfig(), filepath.Join(t.TempDir(), ".agentcore", PolicyFileName))
}

func TestDefaultPolicies(t *testing.T) {
	m := testManager(t)
	if got := m.GetPolicy("read_file"); got != Allow {
		t.Errorf("read_file = %v, want allow", got)
	}
	if got := m.GetPolicy("write_file"); got != Prompt {
		t.Errorf("write_file = %v, want prompt", got)
	}
	if got := m.GetPolicy("delete_file"); got != Deny {
		t.Errorf("delete_file = %v, want deny", got)
	}
	if got := m.GetPolicy("never_heard_of_it"); got != Prompt {
		t.Errorf("unknown tool = %v, want default prompt", got)
	}
}

func TestFullAutoOverridesTable(t *testing.T) {
	m := testManager(t)
	m.EnableFullAuto([]string{"write_file"})
	if !m.IsFullAutoEnabled() {
		t.Fatal("full auto not enabled")
	}
	if got := m.GetPolicy("write_file"); got != Allow {
		t.Fatalf("full-auto write_file = %v, want allow", got)
	}
	// Tools outside the allowlist keep their table policy.
	if got := m.GetPolicy("delete_file"); got != Deny {
		t.Fatalf("full-auto delete_file = %v, want deny", got)
	}
	m.DisableFullAuto()
	if got := m.GetPolicy("write_file"); got != Prompt {
		t.Fatalf("after disable write_file = %v, want prompt", got)
	}
}

func TestPreapproveIsOneShot(t *testing.T) {
	m := testManager(t)
	if m.ShouldExecute("write_file") {
		t.Fatal("write_file should prompt by default")
	}
	m.Preapprove("write_file")
	if !m.ShouldExecute("write_file") {
		t.Fatal("pre-approved tool should execute")
	}
	if m.RequiresPrompt("write_file") {
		t.Fatal("pre-approved tool should not prompt")
	}
	if !m.TakePreapproved("write_file") {
		t.Fatal("TakePreapproved returned false for granted tool")
	}
	if m.TakePreapproved("write_file") {
		t.Fatal("pre-approval consumed twice")
	}
	if !m.RequiresPrompt("write_file") {
		t.Fatal("tool should prompt again after consumption")
	}
}

func TestConstraintURLBlocking(t *testing.T) {
	m := testManager(t)
	res := m.ApplyConstraints("web_fetch", map[string]any{"url": "http://localhost:8080/admin"})
	if res.Verdict != ConstraintViolated {
		t.Fatalf("localhost fetch verdict = %v, want violated", res.Verdict)
	}
	res = m.ApplyConstraints("web_fetch", map[string]any{"url": "https://example.com/page"})
	if res.Verdict != ConstraintAllowed {
		t.Fatalf("example.com fetch verdict = %v (%s), want allowed", res.Verdict, res.Reason)
	}
	res = m.ApplyConstraints("web_fetch", map[string]any{"url": "http://svc.internal/health"})
	if res.Verdict != ConstraintViolated {
		t.Fatalf(".internal fetch verdict = %v, want violated", res.Verdict)
	}
}

func TestConstraintPathBlocking(t *testing.T) {
	m := testManager(t)
	res := m.ApplyConstraints("write_file", map[string]any{"path": "config/.env"})
	if res.Verdict != ConstraintViolated {
		t.Fatalf(".env write verdict = %v, want violated", res.Verdict)
	}
	res = m.ApplyConstraints("write_file", map[string]any{"path": "src/app/credentials.json"})
	if res.Verdict != ConstraintViolated {
		t.Fatalf("credentials write verdict = %v, want violated", res.Verdict)
	}
	res = m.ApplyConstraints("write_file", map[string]any{"path": "src/main.go"})
	if res.Verdict != ConstraintAllowed {
		t.Fatalf("normal write verdict = %v (%s), want allowed", res.Verdict, res.Reason)
	}
}

func TestConstraintClampsLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Constraints["list_files"] = Constraints{MaxItems: 100}
	m := NewManagerWithConfig(cfg, filepath.Join(t.TempDir(), PolicyFileName))

	res := m.ApplyConstraints("list_files", map[string]any{"limit": float64(5000), "path": "."})
	if res.Verdict != ConstraintModified {
		t.Fatalf("verdict = %v, want modified", res.Verdict)
	}
	if got := res.Args["limit"]; got != uint(100) {
		t.Fatalf("clamped limit = %v, want 100", got)
	}
	// Original args untouched.
	res = m.ApplyConstraints("list_files", map[string]any{"limit": float64(50)})
	if res.Verdict != ConstraintAllowed {
		t.Fatalf("in-range limit verdict = %v, want allowed", res.Verdict)
	}
}

func TestModeConstraint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Constraints["fs_tool"] = Constraints{AllowedModes: []string{"read"}}
	m := NewManagerWithConfig(cfg, filepath.Join(t.TempDir(), PolicyFileName))

	if res := m.ApplyConstraints("fs_tool", map[string]any{"mode": "write"}); res.Verdict != ConstraintViolated {
		t.Fatalf("write mode verdict = %v, want violated", res.Verdict)
	}
	if res := m.ApplyConstraints("fs_tool", map[string]any{"mode": "read"}); res.Verdict != ConstraintAllowed {
		t.Fatalf("read mode verdict = %v, want allowed", res.Verdict)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".agentcore", PolicyFileName)
	m := NewManagerWithConfig(DefaultConfig(), path)

	if err := m.SetPolicy("custom_tool", Allow); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("policy file not written: %v", err)
	}

	// A fresh manager over the same workspace sees the persisted policy.
	fresh := NewManager(dir, nil)
	if got := fresh.GetPolicy("custom_tool"); got != Allow {
		t.Fatalf("persisted policy = %v, want allow", got)
	}
}

func TestMergeProjectOverridesGlobal(t *testing.T) {
	global := &Config{Policies: map[string]Policy{"tool_a": Deny, "tool_b": Deny}}
	project := &Config{Policies: map[string]Policy{"tool_a": Allow}}
	merged := mergeConfigs(global, project)
	if merged.Policies["tool_a"] != Allow {
		t.Error("project policy did not override global")
	}
	if merged.Policies["tool_b"] != Deny {
		t.Error("global policy lost in merge")
	}
	if merged.DefaultPolicy != Prompt {
		t.Errorf("default policy = %v, want prompt", merged.DefaultPolicy)
	}
}
