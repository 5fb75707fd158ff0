// Package coordinator implements §4.3's memory coordinator: the
// content-hash deduplicated write path, the hybrid-ranked read path,
// and the lazy-evaluation and temporal-decay policies that sit between
// them.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mnemosdb/mnemos/engine/committee"
	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/engine/queue"
	"github.com/mnemosdb/mnemos/engine/quantum"
	"github.com/mnemosdb/mnemos/engine/store"
	"github.com/mnemosdb/mnemos/pkg/llmadapter"
)

// Coordinator owns add_memory/get_memory/search_memories/update_memory/
// delete_memory, plus the lazy-eval and temporal-decay policies every
// read path applies (§4.3).
type Coordinator struct {
	store     store.Store
	embedder  llmadapter.Embedder
	queue     *queue.Queue
	router    *quantum.Router
	state     *quantum.State
	committee *committee.Evaluator
	log       *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// New builds a Coordinator over its collaborators. committeeEval may be
// nil; TriggerAndWait then degrades to ReturnPartial behavior.
func New(s store.Store, embedder llmadapter.Embedder, q *queue.Queue, router *quantum.Router, state *quantum.State, committeeEval *committee.Evaluator, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LazyEval == "" {
		cfg.LazyEval = LazyReturnPartial
	}
	return &Coordinator{
		store:     s,
		embedder:  embedder,
		queue:     q,
		router:    router,
		state:     state,
		committee: committeeEval,
		cfg:       cfg,
		log:       log,
	}
}

// SetLazyEvalStrategy changes the active lazy-eval policy at runtime,
// per the Rust original's runtime mutator (SPEC_FULL.md §4).
func (c *Coordinator) SetLazyEvalStrategy(s LazyEvalStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.LazyEval = s
}

func (c *Coordinator) lazyEvalStrategy() LazyEvalStrategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.LazyEval
}

func (c *Coordinator) decayRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.decayRate()
}

// AddMemory implements §4.3.1.
func (c *Coordinator) AddMemory(ctx context.Context, content string, memType domain.MemoryType, meta domain.Metadata) (*domain.MemoryNode, error) {
	hash := domain.ContentHash(content)

	existing, err := c.store.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("coordinator: find by hash: %w", err)
	}
	if existing != nil {
		now := time.Now().UTC()
		if _, err := c.store.UpdateTimestampsByHash(ctx, hash, now); err != nil {
			return nil, fmt.Errorf("coordinator: refresh dedup timestamps: %w", err)
		}
		refreshed, err := c.store.Get(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("coordinator: refetch after dedup refresh: %w", err)
		}
		return refreshed, nil
	}

	meta.Importance = domain.ClampImportance(meta.Importance)
	node := domain.NewMemoryNode(content, memType, meta)

	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("coordinator: embed: %w", err)
	}
	node.Embedding = embedding

	created, err := c.store.Create(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create: %w", err)
	}

	c.enqueueEnrichment(created.ID)
	return created, nil
}

// enqueueEnrichment enqueues the three write-path background tasks in
// priority order (§4.3.1 step d). Enqueue failures are logged, never
// fatal to the write path.
func (c *Coordinator) enqueueEnrichment(memoryID string) {
	if c.queue == nil {
		return
	}
	now := time.Now()
	tasks := []domain.CognitiveTask{
		{MemoryID: memoryID, Kind: domain.TaskCommitteeEvaluation, Priority: 5, EnqueuedAt: now},
		{MemoryID: memoryID, Kind: domain.TaskQuantumRouting, Priority: 3, EnqueuedAt: now},
		{MemoryID: memoryID, Kind: domain.TaskEntanglementDiscovery, Priority: 3, EnqueuedAt: now},
	}
	for _, t := range tasks {
		if err := c.queue.Enqueue(t); err != nil {
			c.log.Warn("coordinator: enrichment enqueue failed", "kind", t.Kind, "memory_id", memoryID, "error", err)
		}
	}
}

// GetMemory implements §4.3.2.
func (c *Coordinator) GetMemory(ctx context.Context, id string) (*domain.MemoryNode, error) {
	node, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("coordinator: get %s: %w", id, err)
	}
	if node == nil {
		return nil, nil
	}

	if node.EvaluationStatus == domain.EvaluationPending {
		node = c.applyLazyEval(ctx, node)
	}
	c.applyTemporalDecay(node, time.Now())
	return node, nil
}

// applyLazyEval implements the three §4.3.2/§6 lazy-eval branches.
func (c *Coordinator) applyLazyEval(ctx context.Context, node *domain.MemoryNode) *domain.MemoryNode {
	switch c.lazyEvalStrategy() {
	case LazyWaitForCompletion:
		return c.waitForCompletion(ctx, node)
	case LazyTriggerAndWait:
		return c.triggerAndWait(ctx, node)
	default:
		return node
	}
}

func (c *Coordinator) waitForCompletion(ctx context.Context, node *domain.MemoryNode) *domain.MemoryNode {
	deadline := time.Now().Add(waitForCompletionTimeout)
	current := node
	for current.EvaluationStatus == domain.EvaluationPending && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return current
		case <-time.After(waitForCompletionPollEvery):
		}
		fresh, err := c.store.Get(ctx, current.ID)
		if err != nil || fresh == nil {
			return current
		}
		current = fresh
	}
	return current
}

// triggerAndWait invokes the committee synchronously; its own
// TTL/LRU cache (§4.5 "Caching") means a second call against the same
// content performs zero model calls (S3, B6).
func (c *Coordinator) triggerAndWait(ctx context.Context, node *domain.MemoryNode) *domain.MemoryNode {
	if c.committee == nil {
		return node
	}

	node.EvaluationStatus = domain.EvaluationInProgress
	result, err := c.committee.Evaluate(ctx, node.Content)
	if err != nil {
		node.EvaluationStatus = domain.EvaluationFailed
		if node.Metadata.Custom == nil {
			node.Metadata.Custom = map[string]any{}
		}
		node.Metadata.Custom["evaluation_error"] = err.Error()
	} else {
		node.EvaluationStatus = domain.EvaluationSuccess
		if node.Metadata.Custom == nil {
			node.Metadata.Custom = map[string]any{}
		}
		node.Metadata.Custom["quality_score"] = result.WeightedScore
		node.Metadata.Custom["quality_metric"] = result.QualityMetric
	}

	updated, uerr := c.store.Update(ctx, node)
	if uerr != nil {
		c.log.Warn("coordinator: persisting trigger-and-wait result failed", "memory_id", node.ID, "error", uerr)
		return node
	}
	return updated
}

// applyTemporalDecay implements §4.3.4, mutating node in place and
// touching LastAccessedAt. The global coherence level decays by the
// same factor.
func (c *Coordinator) applyTemporalDecay(node *domain.MemoryNode, now time.Time) {
	ageDays := now.Sub(node.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp(-c.decayRate() * ageDays)

	node.Metadata.Importance = domain.ClampImportance(float32(float64(node.Metadata.Importance) * decay))
	node.LastAccessedAt = now

	if c.state != nil {
		c.state.DecayBy(decay)
	}
}

// SearchMemories implements §4.3.3.
func (c *Coordinator) SearchMemories(ctx context.Context, query string, filter *domain.SearchFilter, topK int) ([]*domain.MemoryNode, error) {
	qEmb, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("coordinator: embed query: %w", err)
	}

	decision := domain.RoutingDecision{Strategy: domain.StrategyAttention, Confidence: 1}
	if c.router != nil {
		decision = c.router.RouteQuery(ctx, domain.EnhancedQuery{
			Original:         query,
			Intent:           domain.IntentRetrieval,
			ContextEmbedding: qEmb,
		})
	}

	hi := 2 * topK
	if hi < 1 {
		hi = 1
	}
	effectiveLimit := clampInt(int(math.Round(float64(topK)*float64(decision.Multiplier()))), 1, hi)

	candidates, err := c.store.SearchByVector(ctx, qEmb, effectiveLimit)
	if err != nil {
		return nil, fmt.Errorf("coordinator: vector search: %w", err)
	}

	now := time.Now()
	for i, cand := range candidates {
		if cand.EvaluationStatus == domain.EvaluationPending {
			cand = c.applyLazyEval(ctx, cand)
			candidates[i] = cand
		}
		c.applyTemporalDecay(cand, now)
		if c.state != nil {
			c.state.Measure()
		}
	}

	filtered := candidates[:0]
	for _, cand := range candidates {
		if filter.Matches(cand) {
			filtered = append(filtered, cand)
		}
	}
	candidates = filtered

	for _, cand := range candidates {
		c.applyEntanglementBoost(cand)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ii := effectiveImportance(candidates[i])
		jj := effectiveImportance(candidates[j])
		if ii != jj {
			return ii > jj
		}
		return candidates[i].ID < candidates[j].ID
	})

	if topK <= 0 {
		return []*domain.MemoryNode{}, nil
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// applyEntanglementBoost implements §4.3.3 step 9: query-time-only
// importance boost from incident entanglement-link strength.
func (c *Coordinator) applyEntanglementBoost(node *domain.MemoryNode) {
	if c.state == nil {
		return
	}
	sum := c.state.StrengthSum(node.ID)
	if sum <= 0 {
		return
	}
	boosted := node.Metadata.Importance * float32(1+entanglementBoostFactor*float64(sum))
	node.Metadata.Importance = domain.ClampImportance(boosted)
}

func effectiveImportance(n *domain.MemoryNode) float32 {
	return n.Metadata.Importance
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UpdateMemory implements §4.3.5: it re-embeds only if content changed.
func (c *Coordinator) UpdateMemory(ctx context.Context, node *domain.MemoryNode) (*domain.MemoryNode, error) {
	existing, err := c.store.Get(ctx, node.ID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: get before update: %w", err)
	}
	if existing == nil {
		return nil, domain.NewNotFoundError("memory", node.ID)
	}

	if node.Content != existing.Content {
		embedding, err := c.embedder.Embed(ctx, node.Content)
		if err != nil {
			return nil, fmt.Errorf("coordinator: re-embed on update: %w", err)
		}
		node.Embedding = embedding
		node.ContentHash = domain.ContentHash(node.Content)
	} else if len(node.Embedding) == 0 {
		node.Embedding = existing.Embedding
	}
	node.Metadata.Importance = domain.ClampImportance(node.Metadata.Importance)
	node.UpdatedAt = time.Now().UTC()

	updated, err := c.store.Update(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("coordinator: update: %w", err)
	}
	return updated, nil
}

// DeleteMemory implements §4.3.5 / I5: deletion cascades to incident
// edges, which the store's Delete is responsible for.
func (c *Coordinator) DeleteMemory(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("coordinator: delete %s: %w", id, err)
	}
	return nil
}

// Shutdown implements §4.3.6: flush pending batches, stop workers by
// closing the queue, which ends every worker's receive loop cleanly.
func (c *Coordinator) Shutdown() {
	if c.queue != nil {
		c.queue.Shutdown()
	}
}
