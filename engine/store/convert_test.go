package store

import (
	"testing"
	"time"

	"github.com/mnemosdb/mnemos/engine/domain"
)

func TestNodeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	n := &domain.MemoryNode{
		ID:          "abc-123",
		Content:     "hello world",
		ContentHash: domain.ContentHash("hello world"),
		MemoryType:  domain.MemoryTypeEpisodic,
		Embedding:   []float32{0.1, 0.2, 0.3},
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata: domain.Metadata{
			Importance: 0.8,
			Keywords:   []string{"hello"},
			Tags:       []string{"chat"},
			Source:     "test",
			Custom:     map[string]any{"quality_score": 0.7},
		},
		EvaluationStatus: domain.EvaluationSuccess,
	}

	m := nodeToMap(n)
	back, err := nodeFromProps(m)
	if err != nil {
		t.Fatalf("nodeFromProps: %v", err)
	}

	if back.ID != n.ID || back.Content != n.Content || back.ContentHash != n.ContentHash {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, n)
	}
	if back.MemoryType != n.MemoryType || back.EvaluationStatus != n.EvaluationStatus {
		t.Fatalf("round trip status/type mismatch: %+v", back)
	}
	if len(back.Embedding) != 3 || back.Embedding[1] != 0.2 {
		t.Fatalf("embedding not preserved: %v", back.Embedding)
	}
	if back.Metadata.Custom["quality_score"] != 0.7 {
		t.Fatalf("custom metadata not preserved: %v", back.Metadata.Custom)
	}
}

func TestSanitizeRelType(t *testing.T) {
	if got := sanitizeRelType(domain.EntanglementSemantic); got != "ENTANGLED_SEMANTIC" {
		t.Errorf("got %q", got)
	}
	if got := sanitizeRelType(domain.EntanglementType("weird; DROP TABLE")); got == "" {
		t.Errorf("sanitized type must never be empty")
	}
}

func TestSortHitsDeterministic(t *testing.T) {
	hits := []VectorHit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
	}
	sortHitsDeterministic(hits)
	if hits[0].ID != "c" {
		t.Fatalf("expected highest score first, got %+v", hits)
	}
	if hits[1].ID != "a" || hits[2].ID != "b" {
		t.Fatalf("expected tie broken by id ascending, got %+v", hits)
	}
}
