package quantum

import (
	"context"
	"testing"

	"github.com/mnemosdb/mnemos/engine/domain"
)

func TestRouteQueryEmergentForComplexQuery(t *testing.T) {
	r := NewRouter(New(1.0), nil)
	decision := r.RouteQuery(context.Background(), domain.EnhancedQuery{
		Original:           "what is the relationship between these concepts",
		Intent:             domain.IntentOther,
		ExpectedComplexity: 0.95,
	})
	if decision.Strategy != domain.StrategyEmergent && decision.Strategy != domain.StrategyHybrid {
		t.Errorf("expected Emergent or Hybrid for a high-complexity query, got %v", decision.Strategy)
	}
	if decision.Confidence < 0.01 || decision.Confidence > 1 {
		t.Errorf("confidence must be in [0.01, 1], got %v", decision.Confidence)
	}
}

func TestRouteQueryCausalForTimeSensitive(t *testing.T) {
	r := NewRouter(New(1.0), nil)
	decision := r.RouteQuery(context.Background(), domain.EnhancedQuery{
		Original:           "what happened most recently",
		Intent:             domain.IntentReasoning,
		ExpectedComplexity: 0.1,
	})
	if decision.Strategy != domain.StrategyCausal && decision.Strategy != domain.StrategyHybrid {
		t.Errorf("expected Causal or Hybrid for a time-sensitive reasoning query, got %v", decision.Strategy)
	}
}

func TestMultiplierTable(t *testing.T) {
	cases := []struct {
		strategy domain.RoutingStrategy
		confidence float32
		want     float32
	}{
		{domain.StrategyQuantum, 0.5, 0.75},
		{domain.StrategyAttention, 0.5, 0.5},
		{domain.StrategyCausal, 0.5, 0.6},
		{domain.StrategyEmergent, 0.5, 1.0},
		{domain.StrategyHybrid, 0.5, 0.55},
	}
	for _, c := range cases {
		d := domain.RoutingDecision{Strategy: c.strategy, Confidence: c.confidence}
		if got := d.Multiplier(); abs32(got-c.want) > 1e-6 {
			t.Errorf("%v multiplier = %v, want %v", c.strategy, got, c.want)
		}
	}
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); abs32(got-1) > 1e-6 {
		t.Errorf("identical vectors should have similarity 1, got %v", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); abs32(got) > 1e-6 {
		t.Errorf("orthogonal vectors should have similarity 0, got %v", got)
	}
}
