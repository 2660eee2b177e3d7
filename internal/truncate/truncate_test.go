package truncate

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectContentType(t *testing.T) {
	code := strings.Repeat("func foo() { bar(); }\n", 10)
	if got := DetectContentType(code); got != TypeCode {
		t.Errorf("code detected as %v", got)
	}
	logs := strings.Repeat("2024-01-02 10:00:01 INFO starting worker\n", 10)
	if got := DetectContentType(logs); got != TypeLog {
		t.Errorf("log detected as %v", got)
	}
	prose := strings.Repeat("the quick brown fox jumps over the lazy dog ", 10)
	if got := DetectContentType(prose); got != TypeText {
		t.Errorf("text detected as %v", got)
	}
}

func TestShortContentPassesThrough(t *testing.T) {
	short := "tiny output"
	res := ByTokens(short, 1)
	if res.Truncated {
		t.Fatal("content under the minimum length was truncated")
	}
	if res.Content != short {
		t.Fatalf("content modified: %q", res.Content)
	}
}

func TestUnderBudgetPassesThrough(t *testing.T) {
	content := strings.Repeat("word ", 100)
	res := ByTokens(content, 10000)
	if res.Truncated {
		t.Fatal("under-budget content was truncated")
	}
}

func TestHeadTailMarker(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("line of ordinary prose content here\n")
	}
	content := sb.String()
	res := ByTokens(content, 100)
	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.Contains(res.Content, "lines truncated ...]") {
		t.Fatalf("marker missing from %q", res.Content[:120])
	}
	if res.LinesRemoved == 0 {
		t.Error("LinesRemoved not recorded")
	}
	if res.TokensSaved == 0 {
		t.Error("TokensSaved not recorded")
	}
	if !strings.HasPrefix(content, strings.SplitN(res.Content, "\n\n[...", 2)[0]) {
		t.Error("head is not a prefix of the original")
	}
}

func TestUTF8BoundarySafety(t *testing.T) {
	// Multi-byte runes throughout; any misplaced cut would produce
	// invalid UTF-8.
	content := strings.Repeat("héllo wörld 世界 ", 2000)
	for _, max := range []int{50, 100, 333, 1000} {
		res := ByTokens(content, max)
		if !utf8.ValidString(res.Content) {
			t.Fatalf("invalid UTF-8 at maxTokens=%d", max)
		}
	}
	res := ToBytes(content, 1000)
	if !utf8.ValidString(res.Content) {
		t.Fatal("byte fuse produced invalid UTF-8")
	}
	if len(res.Content) > 1000 {
		t.Fatalf("byte fuse overshot: %d bytes", len(res.Content))
	}
}

func TestByteFuse(t *testing.T) {
	content := strings.Repeat("x", 200_000)
	res := AggregateToolOutput(content, 1_000_000)
	if !res.Truncated {
		t.Fatal("fuse did not engage")
	}
	if len(res.Content) > ByteFuseLimit {
		t.Fatalf("fused output %d bytes, limit %d", len(res.Content), ByteFuseLimit)
	}
	if !strings.HasSuffix(res.Content, "[... content truncated by byte fuse ...]") {
		t.Error("fuse marker missing")
	}
}

func TestLogKeepsTail(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		sb.WriteString("2024-05-01 12:00:00 INFO routine heartbeat message\n")
	}
	sb.WriteString("2024-05-01 12:59:59 ERROR final crash before exit\n")
	res := ByTokens(sb.String(), 200)
	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.Contains(res.Content, "final crash") {
		t.Error("log tail with the failure was lost")
	}
}

func TestJSONSummarization(t *testing.T) {
	items := make([]map[string]any, 200)
	for i := range items {
		items[i] = map[string]any{"name": strings.Repeat("n", 50), "value": i}
	}
	raw, _ := json.Marshal(map[string]any{"items": items})

	res := JSONOutput(string(raw), 500)
	if !res.Truncated {
		t.Fatal("expected JSON truncation")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(res.Content), &parsed); err != nil {
		t.Fatalf("summarized output is not valid JSON: %v", err)
	}
	if !strings.Contains(res.Content, "more items ...") {
		t.Errorf("array summary marker missing: %s", res.Content[:200])
	}
}

func TestWideObjectSummaryIsDeterministic(t *testing.T) {
	wide := make(map[string]any, 26)
	for c := 'a'; c <= 'z'; c++ {
		wide[string(c)] = strings.Repeat("v", 100)
	}

	first := summarizeValue(wide, 3).(map[string]any)
	if _, ok := first["..."]; !ok {
		t.Fatalf("26-key object not summarized: %d keys kept", len(first))
	}
	// The first 10 keys in sorted order survive, every call.
	for c := 'a'; c <= 'j'; c++ {
		if _, ok := first[string(c)]; !ok {
			t.Errorf("key %q missing from summary", string(c))
		}
	}
	for i := 0; i < 20; i++ {
		again := summarizeValue(wide, 3).(map[string]any)
		if len(again) != len(first) {
			t.Fatalf("summary size changed between calls: %d vs %d", len(again), len(first))
		}
		for k := range first {
			if _, ok := again[k]; !ok {
				t.Fatalf("summary kept different keys between calls: %q dropped", k)
			}
		}
	}
}

func TestJSONFallbackOnGarbage(t *testing.T) {
	garbage := strings.Repeat("not json at all, just plain words ", 1000)
	res := JSONOutput(garbage, 100)
	if !res.Truncated {
		t.Fatal("expected fallback truncation")
	}
	if !strings.Contains(res.Content, "lines truncated ...]") && len(res.Content) >= len(garbage) {
		t.Error("fallback did not shrink content")
	}
}

func TestLongStringSummarized(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"blob": strings.Repeat("a", 5000)})
	res := JSONOutput(string(raw), 300)
	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.Contains(res.Content, "... [truncated]") {
		t.Errorf("string summary marker missing: %s", res.Content)
	}
}
