package quantum

import (
	"math"
	"testing"
)

func TestMeasureDecoherence(t *testing.T) {
	s := New(1.0)
	var last float64
	for i := 0; i < 5; i++ {
		last = s.Measure()
	}
	want := math.Pow(measurementDecay, 4)
	if math.Abs(last-want) > 1e-9 {
		t.Fatalf("measure #5 should return coherence after 4 prior decays: got %v want %v", last, want)
	}
	if s.Coherence() >= last {
		t.Fatalf("coherence should have decayed again after the 5th measure, got %v", s.Coherence())
	}
}

func TestCoherenceFloor(t *testing.T) {
	s := New(0.02)
	for i := 0; i < 1000; i++ {
		s.Measure()
	}
	if s.Coherence() < minCoherence {
		t.Fatalf("coherence must never drop below %v, got %v", minCoherence, s.Coherence())
	}
}

func TestStrengthSum(t *testing.T) {
	s := New(1.0)
	s.SetLinks([]Link{
		{From: "a", To: "b", Strength: 0.3},
		{From: "c", To: "a", Strength: 0.5},
		{From: "x", To: "y", Strength: 0.9},
	})
	if got := s.StrengthSum("a"); got != 0.8 {
		t.Errorf("expected strength sum 0.8 for node a, got %v", got)
	}
}
