package domain

import (
	"testing"
	"time"
)

func TestClampImportance(t *testing.T) {
	cases := []struct {
		in, want float32
	}{
		{-1, 0.01},
		{0, 0.01},
		{0.5, 0.5},
		{1, 1},
		{5, 1},
	}
	for _, c := range cases {
		if got := ClampImportance(c.in); got != c.want {
			t.Errorf("ClampImportance(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEvaluationStatusMonotonic(t *testing.T) {
	if !EvaluationPending.CanTransition(EvaluationInProgress) {
		t.Error("pending -> in_progress must be allowed")
	}
	if !EvaluationInProgress.CanTransition(EvaluationSuccess) {
		t.Error("in_progress -> success must be allowed")
	}
	if EvaluationSuccess.CanTransition(EvaluationPending) {
		t.Error("success -> pending must never be allowed")
	}
	if EvaluationFailed.CanTransition(EvaluationInProgress) {
		t.Error("failed -> in_progress must never be allowed")
	}
}

func TestCollapseMemoryType(t *testing.T) {
	if CollapseMemoryType("fact") != MemoryTypeSemantic {
		t.Error("fact should collapse to semantic")
	}
	if CollapseMemoryType("skill") != MemoryTypeProcedural {
		t.Error("skill should collapse to procedural")
	}
	if CollapseMemoryType("episodic") != MemoryTypeEpisodic {
		t.Error("exact tag match should pass through")
	}
	if CollapseMemoryType("unknown-tag") != MemoryTypeSemantic {
		t.Error("unrecognized tag should default to semantic")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("hello world")
	b := ContentHash("hello world")
	if a != b {
		t.Error("identical content must hash identically")
	}
	if ContentHash("hello world") == ContentHash("hello world!") {
		t.Error("distinct content should (overwhelmingly likely) hash distinctly")
	}
}

func TestSearchFilterMatches(t *testing.T) {
	now := time.Now()
	n := &MemoryNode{
		MemoryType: MemoryTypeEpisodic,
		CreatedAt:  now,
		Metadata:   Metadata{Importance: 0.5},
	}

	if !(*SearchFilter)(nil).Matches(n) {
		t.Error("nil filter matches everything")
	}

	f := &SearchFilter{Types: []MemoryType{MemoryTypeSemantic}}
	if f.Matches(n) {
		t.Error("type filter should exclude non-matching type")
	}

	f = &SearchFilter{ImportanceLow: 0.6, ImportanceHigh: 1.0}
	if f.Matches(n) {
		t.Error("importance filter should exclude below-range node")
	}

	f = &SearchFilter{TimeStart: now.Add(time.Hour)}
	if f.Matches(n) {
		t.Error("time filter should exclude nodes created before start")
	}
}

func TestNewMemoryNodeDefaults(t *testing.T) {
	n := NewMemoryNode("hello", MemoryTypeSemantic, NewMetadata(0.5, nil, nil, "test"))
	if n.ID == "" {
		t.Error("expected a generated id")
	}
	if n.EvaluationStatus != EvaluationPending {
		t.Error("new nodes start Pending")
	}
	if n.ContentHash != ContentHash("hello") {
		t.Error("content hash must match ContentHash(content)")
	}
}
