package quantum

import (
	"context"
	"math"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// SignatureSource returns up to limit recently seen signature samples,
// used to compute the query/signature similarity the router heuristic
// weighs. An empty result is not an error; it scores 0.
type SignatureSource interface {
	RecentSignatures(ctx context.Context, limit int) ([]SignatureSample, error)
}

// SignatureSample pairs a memory id's embedding with its current
// entanglement bond count, used as a cheap proxy for "how entangled is
// this region of the graph."
type SignatureSample struct {
	MemoryID  string
	Embedding []float32
	BondCount int
}

// Router maintains the global QuantumState and chooses a routing
// strategy per query.
type Router struct {
	state *State
	sigs  SignatureSource
}

// NewRouter builds a Router bound to a shared State.
func NewRouter(state *State, sigs SignatureSource) *Router {
	return &Router{state: state, sigs: sigs}
}

// RouteQuery implements §4.6's route_query operation.
func (r *Router) RouteQuery(ctx context.Context, q domain.EnhancedQuery) domain.RoutingDecision {
	entangledScore := r.entanglementScore(ctx, q)
	complexity := q.ExpectedComplexity
	timeSensitive := q.Intent == domain.IntentReasoning && complexity < 0.3

	scores := map[domain.RoutingStrategy]float32{
		domain.StrategyQuantum:   entangledScore,
		domain.StrategyEmergent:  complexity,
		domain.StrategyCausal:    boolScore(timeSensitive),
		domain.StrategyAttention: 1 - complexity,
	}

	best, second := topTwo(scores)
	decision := domain.RoutingDecision{
		Strategy:   best.strategy,
		Confidence: normalizedAgreement(best.score, second.score),
	}
	if decision.Confidence < 0.55 {
		decision.Strategy = domain.StrategyHybrid
	}
	decision.TargetContext = q.Context
	if decision.Confidence < 0.01 {
		decision.Confidence = 0.01
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}
	return decision
}

// entanglementScore approximates how "highly entangled" the region
// around the query's context embedding is, by averaging cosine
// similarity to a handful of recently-seen signatures weighted by their
// bond count.
func (r *Router) entanglementScore(ctx context.Context, q domain.EnhancedQuery) float32 {
	if r.sigs == nil || len(q.ContextEmbedding) == 0 {
		return 0
	}
	samples, err := r.sigs.RecentSignatures(ctx, 20)
	if err != nil || len(samples) == 0 {
		return 0
	}

	var total, weight float32
	for _, s := range samples {
		sim := cosineSimilarity(q.ContextEmbedding, s.Embedding)
		w := float32(s.BondCount) + 1
		total += sim * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	score := total / weight
	if score < 0 {
		return 0
	}
	return score
}

func boolScore(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

type scoredStrategy struct {
	strategy domain.RoutingStrategy
	score    float32
}

func topTwo(scores map[domain.RoutingStrategy]float32) (best, second scoredStrategy) {
	order := []domain.RoutingStrategy{domain.StrategyQuantum, domain.StrategyAttention, domain.StrategyCausal, domain.StrategyEmergent}
	for _, s := range order {
		sc := scoredStrategy{strategy: s, score: scores[s]}
		if sc.score > best.score {
			second = best
			best = sc
		} else if sc.score > second.score {
			second = sc
		}
	}
	return best, second
}

// normalizedAgreement returns how much the top strategy's score
// dominates the runner-up's, in [0,1].
func normalizedAgreement(best, second float32) float32 {
	total := best + second
	if total <= 0 {
		return 0.5
	}
	return best / total
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
