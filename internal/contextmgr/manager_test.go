package contextmgr

import (
	"strings"
	"testing"

	"github.com/KafClaw/agentcore/internal/provider"
	"github.com/KafClaw/agentcore/internal/tokens"
)

func testOptions(events *[]Event) Options {
	return Options{
		Budget: tokens.Config{
			MaxContextTokens: 1000,
			WarningThreshold: 0.75,
			AlertThreshold:   0.85,
		},
		Emit: func(ev Event) { *events = append(*events, ev) },
	}
}

// userMessage is 400 bytes, which the byte heuristic counts as 100 tokens.
func userMessage() provider.Message {
	return provider.Message{Role: "user", Content: strings.Repeat("x", 400)}
}

func TestEnforceNoopUnderNormalPressure(t *testing.T) {
	var events []Event
	m := NewManager(testOptions(&events))

	messages := []provider.Message{userMessage(), userMessage()}
	m.UpdateFromMessages("", messages)

	kept := m.EnforceContextWindow("", messages)
	if len(kept) != len(messages) {
		t.Fatalf("expected no pruning, got %d of %d messages", len(kept), len(messages))
	}
	if m.LastEfficiency() != nil {
		t.Error("expected no efficiency record without a prune")
	}
	for _, ev := range events {
		if ev.Kind == EventContextPruned {
			t.Errorf("unexpected %s event", ev.Kind)
		}
	}
}

func TestEnforcePrunesAtCriticalPressure(t *testing.T) {
	var events []Event
	m := NewManager(testOptions(&events))

	messages := make([]provider.Message, 10)
	for i := range messages {
		messages[i] = userMessage()
	}
	m.UpdateFromMessages("", messages)
	if got := m.Budget().Level(); got != tokens.LevelCritical {
		t.Fatalf("level = %v, want critical", got)
	}

	kept := m.EnforceContextWindow("", messages)

	// Aggressive target is 0.7*0.8 = 0.56 of a 1000-token window, so five
	// 100-token messages fit: the two protected recents plus three more.
	if len(kept) != 5 {
		t.Fatalf("kept %d messages, want 5", len(kept))
	}
	eff := m.LastEfficiency()
	if eff == nil {
		t.Fatal("expected an efficiency record")
	}
	if eff.MessagesPruned != 5 {
		t.Errorf("MessagesPruned = %d, want 5", eff.MessagesPruned)
	}
	if eff.TokensFreed != 500 {
		t.Errorf("TokensFreed = %d, want 500", eff.TokensFreed)
	}
	if eff.UtilizationAfter >= eff.UtilizationBefore {
		t.Errorf("utilization did not drop: before %.2f after %.2f",
			eff.UtilizationBefore, eff.UtilizationAfter)
	}

	var pruned *Event
	for i := range events {
		if events[i].Kind == EventContextPruned {
			pruned = &events[i]
		}
	}
	if pruned == nil {
		t.Fatal("expected a context_pruned event")
	}
	if pruned.MessagesRemoved != 5 || pruned.TokensFreed != 500 {
		t.Errorf("event = %+v, want 5 removed / 500 freed", *pruned)
	}
}

func TestEnforceDisabled(t *testing.T) {
	var events []Event
	opts := testOptions(&events)
	opts.Trim = DefaultTrimConfig()
	opts.Trim.Enabled = false
	m := NewManager(opts)

	messages := make([]provider.Message, 10)
	for i := range messages {
		messages[i] = userMessage()
	}
	m.UpdateFromMessages("", messages)

	if kept := m.EnforceContextWindow("", messages); len(kept) != 10 {
		t.Fatalf("trimming disabled but kept %d of 10", len(kept))
	}
}

func TestAlertEvents(t *testing.T) {
	var events []Event
	m := NewManager(testOptions(&events))

	// 800 of 1000 tokens is above warning (0.75) but below alert (0.85).
	m.UpdateFromMessages("", []provider.Message{
		{Role: "user", Content: strings.Repeat("x", 3200)},
	})
	if len(events) != 1 || events[0].Kind != EventWarningThreshold {
		t.Fatalf("events = %+v, want one warning_threshold", events)
	}
	if events[0].Utilization != 0.8 {
		t.Errorf("Utilization = %v, want 0.8", events[0].Utilization)
	}

	events = events[:0]
	m.UpdateFromMessages("", []provider.Message{
		{Role: "user", Content: strings.Repeat("x", 3600)},
	})
	if len(events) != 1 || events[0].Kind != EventAlertThreshold {
		t.Fatalf("events = %+v, want one alert_threshold", events)
	}

	events = events[:0]
	m.UpdateFromMessages("", []provider.Message{
		{Role: "user", Content: strings.Repeat("x", 4400)},
	})
	if len(events) != 1 || events[0].Kind != EventContextExceeded {
		t.Fatalf("events = %+v, want one context_exceeded", events)
	}
	if events[0].TotalTokens != 1100 || events[0].MaxTokens != 1000 {
		t.Errorf("event = %+v, want 1100 of 1000", events[0])
	}

	events = events[:0]
	m.Reset()
	m.CheckAndEmitAlerts()
	if len(events) != 0 {
		t.Errorf("events after reset = %+v, want none", events)
	}
}

func TestTruncateToolResponse(t *testing.T) {
	var events []Event
	opts := testOptions(&events)
	opts.Trim = DefaultTrimConfig()
	opts.Trim.MaxToolResponseTokens = 100
	m := NewManager(opts)

	small := m.TruncateToolResponse("short output", "read_file")
	if small.Truncated {
		t.Error("short output should pass through")
	}
	if len(events) != 0 {
		t.Errorf("unexpected events %+v", events)
	}

	big := m.TruncateToolResponse(strings.Repeat("line of output\n", 200), "shell")
	if !big.Truncated {
		t.Fatal("expected truncation")
	}
	if len(events) != 1 || events[0].Kind != EventToolResponseTruncated {
		t.Fatalf("events = %+v, want one tool_response_truncated", events)
	}
	if events[0].ToolName != "shell" {
		t.Errorf("ToolName = %q, want shell", events[0].ToolName)
	}
	if events[0].TruncatedTokens >= events[0].OriginalTokens {
		t.Errorf("truncated %d >= original %d", events[0].TruncatedTokens, events[0].OriginalTokens)
	}
}

func TestSummaryAndCanAdd(t *testing.T) {
	m := NewManager(testOptions(&[]Event{}))
	m.UpdateFromMessages("", []provider.Message{
		{Role: "user", Content: strings.Repeat("x", 400)},
	})

	sum := m.GetSummary()
	if sum.TotalTokens != 100 {
		t.Errorf("TotalTokens = %d, want 100", sum.TotalTokens)
	}
	if sum.MaxTokens != 1000 || sum.AvailableTokens != 1000 {
		t.Errorf("window = %d/%d, want 1000/1000", sum.MaxTokens, sum.AvailableTokens)
	}
	if sum.Utilization != 0.1 {
		t.Errorf("Utilization = %v, want 0.1", sum.Utilization)
	}
	if sum.AlertLevel != tokens.LevelNormal {
		t.Errorf("AlertLevel = %v, want normal", sum.AlertLevel)
	}

	if !m.CanAddMessage(900) {
		t.Error("900 tokens should fit in the remaining 900")
	}
	if m.CanAddMessage(901) {
		t.Error("901 tokens should not fit")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  provider.Message
		want string
	}{
		{provider.Message{Role: "system", Content: "s"}, "system"},
		{provider.Message{Role: "user", Content: "u"}, "user query"},
		{provider.Message{Role: "user", Content: "r", ToolCallID: "call_1"}, "tool response"},
		{provider.Message{Role: "tool", Content: "r"}, "tool response"},
		{provider.Message{Role: "assistant", Content: "a"}, "assistant"},
		{provider.Message{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "c"}}}, "assistant tool call"},
	}
	names := map[string]int{
		"system":              950,
		"user query":          850,
		"assistant tool call": 650,
		"tool response":       600,
		"assistant":           500,
	}
	for _, tc := range cases {
		if got := classify(tc.msg).Score(); got != names[tc.want] {
			t.Errorf("classify(%s %q) score = %d, want %d (%s)",
				tc.msg.Role, tc.msg.Content, got, names[tc.want], tc.want)
		}
	}
}
