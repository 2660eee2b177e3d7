package loopdetect

import "testing"

func TestRepeatLadder(t *testing.T) {
	d := NewDetector(Config{MaxToolLoops: 100, MaxRepeatedToolCalls: 5, WarningThreshold: 0.6, Enabled: true})
	args := map[string]any{"path": "/tmp/x"}

	// Warning engages at ceil(5*0.6) = 3 repeats; block past 5.
	wants := []Verdict{Allowed, Allowed, Warning, Warning, Warning, Blocked}
	for i, want := range wants {
		out := d.Record("read_file", args)
		if out.Verdict != want {
			t.Fatalf("call %d: verdict = %v, want %v", i+1, out.Verdict, want)
		}
	}
}

func TestSignatureIsolation(t *testing.T) {
	d := NewDetector(DefaultConfig())
	for i := 0; i < 10; i++ {
		// Same tool, different arguments: never a repeat.
		out := d.Record("read_file", map[string]any{"path": "/tmp/file", "offset": i})
		if out.Verdict != Allowed {
			t.Fatalf("distinct args flagged at call %d: %v", i+1, out.Verdict)
		}
	}
	st := d.Stats()
	if st.UniqueSignatures != 10 {
		t.Errorf("UniqueSignatures = %d, want 10", st.UniqueSignatures)
	}
}

func TestSignatureKeyOrderInsensitive(t *testing.T) {
	a := Signature("t", map[string]any{"a": 1, "b": "x"})
	b := Signature("t", map[string]any{"b": "x", "a": 1})
	if a != b {
		t.Fatalf("signatures differ for equal args: %q vs %q", a, b)
	}
	c := Signature("t", map[string]any{"a": 2, "b": "x"})
	if a == c {
		t.Fatal("signatures collide for different args")
	}
}

func TestIterationCeiling(t *testing.T) {
	d := NewDetector(Config{MaxToolLoops: 3, MaxRepeatedToolCalls: 100, WarningThreshold: 0.9, Enabled: true})
	for i := 0; i < 3; i++ {
		if out := d.Record("t", map[string]any{"i": i}); out.Verdict != Allowed {
			t.Fatalf("call %d: %v", i+1, out.Verdict)
		}
	}
	if out := d.Record("t", map[string]any{"i": 99}); out.Verdict != MaxIterationsReached {
		t.Fatalf("ceiling verdict = %v, want MaxIterationsReached", out.Verdict)
	}
}

func TestDisabledStillCountsIterations(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Disable()
	args := map[string]any{"x": 1}
	for i := 0; i < 20; i++ {
		if out := d.Record("t", args); out.Verdict != Allowed {
			t.Fatalf("disabled detector blocked call %d: %v", i+1, out.Verdict)
		}
	}
	if got := d.Stats().IterationCount; got != 20 {
		t.Errorf("IterationCount = %d, want 20", got)
	}
	if d.IsEnabled() {
		t.Error("IsEnabled = true after Disable")
	}
	d.Enable()
	if !d.IsEnabled() {
		t.Error("IsEnabled = false after Enable")
	}
}

func TestResetSignature(t *testing.T) {
	d := NewDetector(DefaultConfig())
	args := map[string]any{"q": "same"}
	for i := 0; i < 5; i++ {
		d.Record("search", args)
	}
	if out := d.Record("search", args); out.Verdict != Blocked {
		t.Fatalf("expected blocked, got %v", out.Verdict)
	}
	d.ResetSignature("search", args)
	if out := d.Record("search", args); out.Verdict != Allowed {
		t.Fatalf("after ResetSignature: %v, want Allowed", out.Verdict)
	}
}

func TestStats(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Record("a", map[string]any{"k": 1})
	d.Record("b", map[string]any{"k": 1})
	d.Record("b", map[string]any{"k": 1})
	st := d.Stats()
	if st.IterationCount != 3 || st.UniqueSignatures != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if st.MostRepeatedTool != "b" || st.MostRepeatedCount != 2 {
		t.Fatalf("most repeated = %s/%d, want b/2", st.MostRepeatedTool, st.MostRepeatedCount)
	}

	d.Reset()
	st = d.Stats()
	if st.IterationCount != 0 || st.UniqueSignatures != 0 {
		t.Fatalf("stats after reset = %+v", st)
	}
}
