package prune

import (
	"sort"
	"testing"
)

func TestEmptyHistoryNoop(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	res := p.Prune(nil, 100)
	if res.Pruned || len(res.KeptIndices) != 0 || res.KeptTokens != 0 {
		t.Fatalf("empty prune = %+v, want zero result", res)
	}
}

func TestUnderBudgetKeepsEverything(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	items := []Item{
		{Kind: KindSystem, Tokens: 10},
		{Kind: KindUserQuery, Tokens: 20},
		{Kind: KindAssistant, Tokens: 30},
	}
	res := p.Prune(items, 100)
	if res.Pruned {
		t.Fatal("under-budget prune reported pruned=true")
	}
	if len(res.KeptIndices) != 3 || res.KeptTokens != 60 {
		t.Fatalf("kept = %v tokens = %d, want all 3 / 60", res.KeptIndices, res.KeptTokens)
	}
}

func TestKeptIndicesPreserveOrder(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	items := make([]Item, 20)
	for i := range items {
		items[i] = Item{Kind: KindAssistant, Tokens: 50}
	}
	items[0].Kind = KindSystem
	items[5].Kind = KindUserQuery

	res := p.Prune(items, 400)
	if !res.Pruned {
		t.Fatal("expected pruning with 1000 tokens against budget 400")
	}
	if !sort.IntsAreSorted(res.KeptIndices) {
		t.Fatalf("kept indices out of order: %v", res.KeptIndices)
	}
	if !sort.IntsAreSorted(res.PrunedIndices) {
		t.Fatalf("pruned indices out of order: %v", res.PrunedIndices)
	}
	if got := len(res.KeptIndices) + len(res.PrunedIndices); got != len(items) {
		t.Fatalf("kept+pruned = %d, want %d", got, len(items))
	}
}

func TestSystemAndRecentSurvive(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	items := make([]Item, 30)
	for i := range items {
		items[i] = Item{Kind: KindContext, Tokens: 100}
	}
	items[0].Kind = KindSystem

	res := p.Prune(items, 500)
	kept := map[int]bool{}
	for _, i := range res.KeptIndices {
		kept[i] = true
	}
	if !kept[0] {
		t.Error("system message was pruned")
	}
	// Last two turns are protected by default.
	if !kept[28] || !kept[29] {
		t.Errorf("protected recent turns pruned: kept=%v", res.KeptIndices)
	}
}

func TestProtectedOverflowKeepsOnlyProtected(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	items := []Item{
		{Kind: KindSystem, Tokens: 400},
		{Kind: KindContext, Tokens: 50},
		{Kind: KindContext, Tokens: 50},
		{Kind: KindUserQuery, Tokens: 300}, // protected by recency
		{Kind: KindAssistant, Tokens: 300}, // protected by recency
	}
	// Protected total is 1000, over the 600 budget.
	res := p.Prune(items, 600)
	if !res.Pruned {
		t.Fatal("expected pruned=true when protected overflow")
	}
	want := []int{0, 3, 4}
	if len(res.KeptIndices) != len(want) {
		t.Fatalf("kept = %v, want %v", res.KeptIndices, want)
	}
	for i, idx := range want {
		if res.KeptIndices[i] != idx {
			t.Fatalf("kept = %v, want %v", res.KeptIndices, want)
		}
	}
	if res.KeptTokens != 1000 {
		t.Errorf("KeptTokens = %d, want 1000", res.KeptTokens)
	}
	if res.PrunedTokens != 100 {
		t.Errorf("PrunedTokens = %d, want 100", res.PrunedTokens)
	}
}

func TestRecencyPrefersLaterMessages(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	// Identical low-value messages; only recency differentiates them.
	items := make([]Item, 10)
	for i := range items {
		items[i] = Item{Kind: KindContext, Tokens: 100}
	}
	res := p.Prune(items, 500)
	kept := map[int]bool{}
	for _, i := range res.KeptIndices {
		kept[i] = true
	}
	if kept[0] && !kept[9] {
		t.Fatalf("older message outlived newer one: %v", res.KeptIndices)
	}
	if !kept[9] || !kept[8] {
		t.Fatalf("most recent messages should be kept: %v", res.KeptIndices)
	}
}

func TestScoreClamp(t *testing.T) {
	it := Item{Kind: KindContext, Score: 5000}
	if got := it.semanticScore(); got != 1000 {
		t.Errorf("over-score clamp = %d, want 1000", got)
	}
	it = Item{Kind: KindContext, Score: -10}
	if got := it.semanticScore(); got != 0 {
		t.Errorf("under-score clamp = %d, want 0", got)
	}
}

func TestExplicitScoreProtects(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	items := make([]Item, 10)
	for i := range items {
		items[i] = Item{Kind: KindContext, Tokens: 100}
	}
	items[3].Score = 980 // pinned

	res := p.Prune(items, 400)
	found := false
	for _, i := range res.KeptIndices {
		if i == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("pinned message pruned: %v", res.KeptIndices)
	}
}

func TestLongHistoryPrunesToBudget(t *testing.T) {
	p := NewPruner(DefaultConfig(), nil)
	items := make([]Item, 50)
	for i := range items {
		kind := KindUserQuery
		if i%2 == 0 {
			kind = KindAssistant
		}
		items[i] = Item{Kind: kind, Tokens: 240}
	}
	items[0].Kind = KindSystem

	res := p.Prune(items, 8000)
	if !res.Pruned {
		t.Fatal("expected pruning with 12000 tokens against budget 8000")
	}
	if res.KeptTokens > 8000 {
		t.Fatalf("kept %d tokens, want <= 8000", res.KeptTokens)
	}
	kept := map[int]bool{}
	for _, i := range res.KeptIndices {
		kept[i] = true
	}
	if !kept[0] {
		t.Error("system message was pruned")
	}
	if !kept[48] || !kept[49] {
		t.Errorf("protected recent turns pruned: kept=%v", res.KeptIndices)
	}
	if got := res.KeptTokens + res.PrunedTokens; got != 12000 {
		t.Fatalf("kept+pruned tokens = %d, want 12000", got)
	}
}
