package coordinator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/engine/quantum"
)

// entanglementNeighbors is the kNN fan-out width for discovery (§4.6).
const entanglementNeighbors = 6

const (
	bondThresholdBell     = 0.85
	bondThresholdSemantic = 0.65

	// decoherenceEpsilon is the minimum entropy delta worth persisting;
	// smaller drifts are folded into the next run instead of generating
	// a write.
	decoherenceEpsilon = 0.005
)

// Handler is the single queue.Handler that dispatches every background
// enrichment task (§4.4) by kind.
func (c *Coordinator) Handler(ctx context.Context, task domain.CognitiveTask) error {
	switch task.Kind {
	case domain.TaskCommitteeEvaluation:
		return c.handleCommitteeEvaluation(ctx, task)
	case domain.TaskQuantumRouting:
		return c.handleQuantumRouting(ctx, task)
	case domain.TaskEntanglementDiscovery:
		return c.handleEntanglementDiscovery(ctx, task)
	case domain.TaskTemporalDecoherence:
		return c.handleTemporalDecoherence(ctx, task)
	default:
		return fmt.Errorf("coordinator: unknown task kind %q", task.Kind)
	}
}

// handleCommitteeEvaluation implements §4.5's background path: score
// the node's content, then transition its evaluation_status, never
// downgrading it (I2).
func (c *Coordinator) handleCommitteeEvaluation(ctx context.Context, task domain.CognitiveTask) error {
	if c.committee == nil {
		return nil
	}
	node, err := c.store.Get(ctx, task.MemoryID)
	if err != nil {
		return fmt.Errorf("coordinator: load %s for committee evaluation: %w", task.MemoryID, err)
	}
	if node == nil {
		return nil
	}

	if node.EvaluationStatus.CanTransition(domain.EvaluationInProgress) {
		node.EvaluationStatus = domain.EvaluationInProgress
	}

	result, evalErr := c.committee.Evaluate(ctx, node.Content)
	if node.Metadata.Custom == nil {
		node.Metadata.Custom = map[string]any{}
	}
	if evalErr != nil {
		if node.EvaluationStatus.CanTransition(domain.EvaluationFailed) {
			node.EvaluationStatus = domain.EvaluationFailed
		}
		node.Metadata.Custom["evaluation_error"] = evalErr.Error()
	} else {
		if node.EvaluationStatus.CanTransition(domain.EvaluationSuccess) {
			node.EvaluationStatus = domain.EvaluationSuccess
		}
		node.Metadata.Custom["quality_score"] = result.WeightedScore
		node.Metadata.Custom["quality_metric"] = result.QualityMetric
	}

	if _, err := c.store.Update(ctx, node); err != nil {
		return fmt.Errorf("coordinator: persist committee evaluation for %s: %w", task.MemoryID, err)
	}
	return evalErr
}

// handleQuantumRouting implements §4.6's signature-attachment worker: it
// normalizes the node's embedding, stores its Shannon entropy and a
// collapse probability of 1/(1+entropy) in Metadata.Custom, so two
// identical embeddings always get the same values, together with the
// current decay rate and a timestamp.
func (c *Coordinator) handleQuantumRouting(ctx context.Context, task domain.CognitiveTask) error {
	node, err := c.store.Get(ctx, task.MemoryID)
	if err != nil {
		return fmt.Errorf("coordinator: load %s for quantum routing: %w", task.MemoryID, err)
	}
	if node == nil || len(node.Embedding) == 0 {
		return nil
	}

	amplitudes := normalize(node.Embedding)
	entropy := shannonEntropy(amplitudes)
	collapseProbability := 1.0 / (1.0 + entropy)

	if node.Metadata.Custom == nil {
		node.Metadata.Custom = map[string]any{}
	}
	node.Metadata.Custom["quantum_entropy"] = entropy
	node.Metadata.Custom["quantum_collapse_probability"] = collapseProbability
	node.Metadata.Custom["quantum_decoherence_rate"] = c.decayRate()
	node.Metadata.Custom["quantum_signature_at"] = time.Now().UTC().Format(time.RFC3339)

	if _, err := c.store.Update(ctx, node); err != nil {
		return fmt.Errorf("coordinator: persist quantum signature for %s: %w", task.MemoryID, err)
	}
	return nil
}

// handleEntanglementDiscovery implements §4.6's link-discovery worker:
// find the node's nearest neighbours by embedding, persist an
// entanglement edge to each one above a minimal similarity, and merge
// the discovered links into the shared quantum state atomically.
func (c *Coordinator) handleEntanglementDiscovery(ctx context.Context, task domain.CognitiveTask) error {
	node, err := c.store.Get(ctx, task.MemoryID)
	if err != nil {
		return fmt.Errorf("coordinator: load %s for entanglement discovery: %w", task.MemoryID, err)
	}
	if node == nil || len(node.Embedding) == 0 {
		return nil
	}

	neighbors, err := c.store.SearchByVector(ctx, node.Embedding, entanglementNeighbors+1)
	if err != nil {
		return fmt.Errorf("coordinator: neighbor search for %s: %w", task.MemoryID, err)
	}

	var links []quantum.Link
	for _, n := range neighbors {
		if n.ID == node.ID || n.RelevanceScore == nil {
			continue
		}
		strength := *n.RelevanceScore
		if strength < bondThresholdSemantic {
			continue
		}

		edge := domain.EntanglementEdge{
			From:     node.ID,
			To:       n.ID,
			Strength: strength,
			Type:     bondType(strength),
		}
		if _, err := c.store.CreateEdge(ctx, edge); err != nil {
			return fmt.Errorf("coordinator: create edge %s->%s: %w", node.ID, n.ID, err)
		}
		links = append(links, quantum.Link{From: node.ID, To: n.ID, Strength: strength})
	}

	if len(links) > 0 && c.state != nil {
		c.state.AddLinks(links)
	}
	return nil
}

func bondType(strength float32) domain.EntanglementType {
	if strength >= bondThresholdBell {
		return domain.EntanglementBell
	}
	return domain.EntanglementSemantic
}

// handleTemporalDecoherence implements §4.6's aging pass: a node's
// persisted entropy drifts toward its ceiling as it goes unaccessed,
// written back only when the drift clears decoherenceEpsilon.
func (c *Coordinator) handleTemporalDecoherence(ctx context.Context, task domain.CognitiveTask) error {
	node, err := c.store.Get(ctx, task.MemoryID)
	if err != nil {
		return fmt.Errorf("coordinator: load %s for temporal decoherence: %w", task.MemoryID, err)
	}
	if node == nil || node.Metadata.Custom == nil {
		return nil
	}

	entropy, ok := node.Metadata.Custom["quantum_entropy"].(float64)
	if !ok {
		return nil
	}
	rate, ok := node.Metadata.Custom["quantum_decoherence_rate"].(float64)
	if !ok {
		rate = c.decayRate()
	}

	elapsed := time.Since(node.LastAccessedAt).Hours() / 24
	if elapsed < 0 {
		elapsed = 0
	}
	aged := math.Min(1.0, entropy+rate*elapsed)

	if math.Abs(aged-entropy) < decoherenceEpsilon {
		return nil
	}

	node.Metadata.Custom["quantum_entropy"] = aged
	node.Metadata.Custom["quantum_collapse_probability"] = 1.0 / (1.0 + aged)
	if _, err := c.store.Update(ctx, node); err != nil {
		return fmt.Errorf("coordinator: persist decoherence for %s: %w", task.MemoryID, err)
	}
	return nil
}

func normalize(v []float32) []float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float64, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

// shannonEntropy treats the squared amplitude vector as a probability
// distribution (it sums to 1 for a unit-normalized input) and returns
// its Shannon entropy in nats.
func shannonEntropy(amplitudes []float64) float64 {
	var h float64
	for _, a := range amplitudes {
		p := a * a
		if p <= 0 {
			continue
		}
		h -= p * math.Log(p)
	}
	return h
}
