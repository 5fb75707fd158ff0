// Package domain holds the memory engine's core value types: the tagged
// variants and records shared by the coordinator, the queue, the
// committee, the quantum router, and the macro engine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemoryType is the tagged variant a MemoryNode's storage tag collapses
// to. Domain-specific tags (Fact, Emotional, ...) are mapped onto one of
// these at the boundary; see CollapseMemoryType.
type MemoryType string

const (
	MemoryTypeSemantic  MemoryType = "semantic"
	MemoryTypeEpisodic  MemoryType = "episodic"
	MemoryTypeProcedural MemoryType = "procedural"
	MemoryTypeWorking   MemoryType = "working"
	MemoryTypeLongTerm  MemoryType = "long_term"
)

// domainTagAliases maps looser domain vocabulary onto a storage tag.
var domainTagAliases = map[string]MemoryType{
	"fact":        MemoryTypeSemantic,
	"knowledge":   MemoryTypeSemantic,
	"emotional":   MemoryTypeEpisodic,
	"event":       MemoryTypeEpisodic,
	"skill":       MemoryTypeProcedural,
	"howto":       MemoryTypeProcedural,
	"scratch":     MemoryTypeWorking,
	"session":     MemoryTypeWorking,
	"archive":     MemoryTypeLongTerm,
	"consolidated": MemoryTypeLongTerm,
}

// CollapseMemoryType maps an arbitrary domain tag onto the nearest
// storage tag, defaulting to Semantic when the tag is unrecognized.
func CollapseMemoryType(tag string) MemoryType {
	if mt, ok := domainTagAliases[tag]; ok {
		return mt
	}
	for _, mt := range []MemoryType{MemoryTypeSemantic, MemoryTypeEpisodic, MemoryTypeProcedural, MemoryTypeWorking, MemoryTypeLongTerm} {
		if string(mt) == tag {
			return mt
		}
	}
	return MemoryTypeSemantic
}

// EvaluationStatus progresses monotonically: Pending -> InProgress ->
// {Success, Failed, Cancelled}. Workers must never downgrade it.
type EvaluationStatus string

const (
	EvaluationPending    EvaluationStatus = "pending"
	EvaluationInProgress EvaluationStatus = "in_progress"
	EvaluationSuccess    EvaluationStatus = "success"
	EvaluationFailed     EvaluationStatus = "failed"
	EvaluationCancelled  EvaluationStatus = "cancelled"
)

var evaluationRank = map[EvaluationStatus]int{
	EvaluationPending:    0,
	EvaluationInProgress: 1,
	EvaluationSuccess:    2,
	EvaluationFailed:     2,
	EvaluationCancelled:  2,
}

// CanTransition reports whether moving from s to next respects the
// monotonic evaluation-status state machine (I2).
func (s EvaluationStatus) CanTransition(next EvaluationStatus) bool {
	return evaluationRank[next] >= evaluationRank[s]
}

const (
	minImportance = 0.01
	maxImportance = 1.0
)

// ClampImportance enforces invariant I3: importance stays in [0.01, 1.0].
func ClampImportance(v float32) float32 {
	if v < minImportance {
		return minImportance
	}
	if v > maxImportance {
		return maxImportance
	}
	return v
}

// Metadata carries the user-supplied and engine-derived annotations of a
// MemoryNode.
type Metadata struct {
	Importance float32
	Keywords   []string
	Tags       []string
	Source     string
	Custom     map[string]any
}

// NewMetadata builds a Metadata with importance clamped into range and a
// non-nil Custom map.
func NewMetadata(importance float32, keywords, tags []string, source string) Metadata {
	return Metadata{
		Importance: ClampImportance(importance),
		Keywords:   keywords,
		Tags:       tags,
		Source:     source,
		Custom:     map[string]any{},
	}
}

// MemoryNode is the central entity: immutable content, mutable
// enrichment state.
type MemoryNode struct {
	ID               string
	Content          string
	ContentHash      uint64
	MemoryType       MemoryType
	Embedding        []float32
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAccessedAt   time.Time
	Metadata         Metadata
	EvaluationStatus EvaluationStatus

	// RelevanceScore is populated only on search results; never persisted.
	RelevanceScore *float32
}

// NewMemoryNode constructs a fresh node with a random id and Pending
// evaluation status. ContentHash is computed here from content; callers
// still owe it an embedding.
func NewMemoryNode(content string, memType MemoryType, meta Metadata) *MemoryNode {
	now := time.Now().UTC()
	return &MemoryNode{
		ID:               uuid.NewString(),
		Content:          content,
		ContentHash:      ContentHash(content),
		MemoryType:       memType,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastAccessedAt:   now,
		Metadata:         meta,
		EvaluationStatus: EvaluationPending,
	}
}

// EntanglementType classifies why two memories are associatively linked.
type EntanglementType string

const (
	EntanglementSemantic EntanglementType = "semantic"
	EntanglementTemporal EntanglementType = "temporal"
	EntanglementCausal   EntanglementType = "causal"
	EntanglementEmergent EntanglementType = "emergent"
	EntanglementWerner   EntanglementType = "werner"
	EntanglementWeak     EntanglementType = "weak"
	EntanglementBell     EntanglementType = "bell"
	EntanglementBellPair EntanglementType = "bell_pair"
)

// EntanglementBond is one edge as carried inside a QuantumSignature.
type EntanglementBond struct {
	TargetID string
	Strength float32
	Type     EntanglementType
}

// EntanglementEdge is the persisted directed graph edge (I5: both
// endpoints must exist; deleting a memory cascades to its edges).
type EntanglementEdge struct {
	From     string
	To       string
	Strength float32
	Type     EntanglementType
}

// QuantumSignature is lazily attached per memory by the quantum-routing
// worker.
type QuantumSignature struct {
	Amplitudes       []float32
	Phases           []float32
	Bonds            []EntanglementBond
	CollapseProbability float32
	Entropy          float32
	DecoherenceRate  float32
}

// CognitiveTaskKind names the four background enrichment jobs.
type CognitiveTaskKind string

const (
	TaskCommitteeEvaluation  CognitiveTaskKind = "committee_evaluation"
	TaskQuantumRouting       CognitiveTaskKind = "quantum_routing"
	TaskEntanglementDiscovery CognitiveTaskKind = "entanglement_discovery"
	TaskTemporalDecoherence  CognitiveTaskKind = "temporal_decoherence"
)

// CognitiveTask is one unit of background enrichment work.
type CognitiveTask struct {
	MemoryID   string
	Kind       CognitiveTaskKind
	Priority   uint8
	EnqueuedAt time.Time
}

// CommitteeEvaluation is one model's scoring of a piece of text.
type CommitteeEvaluation struct {
	ModelID               string
	Score                 float32
	Reasoning             string
	Confidence            float32
	ObjectiveAlignment    float32
	ImplementationQuality float32
	RiskAssessment        float32
	MakesProgress         bool
	EvaluationTime        time.Duration
}

// Document is one unit produced by the context pipeline.
type Document struct {
	ID              string
	Data            string // raw UTF-8 text, or base64 when Format == FormatBase64
	Format           DocumentFormat
	MediaType        string
	AdditionalProps  map[string]string
}

// DocumentFormat distinguishes inline text from base64-encoded binary.
type DocumentFormat string

const (
	FormatText   DocumentFormat = "text"
	FormatBase64 DocumentFormat = "base64"
)

// Intent classifies what a query is trying to accomplish, feeding the
// quantum router's strategy heuristic.
type Intent string

const (
	IntentRetrieval Intent = "retrieval"
	IntentReasoning Intent = "reasoning"
	IntentPlanning  Intent = "planning"
	IntentOther     Intent = "other"
)

// EnhancedQuery is the router's input: a query plus the context that
// should influence its routing decision.
type EnhancedQuery struct {
	Original          string
	Intent            Intent
	Context           string
	ContextEmbedding  []float32
	Priority          uint8
	ExpectedComplexity float32
}

// RoutingStrategy is the quantum router's chosen search strategy.
type RoutingStrategy string

const (
	StrategyQuantum   RoutingStrategy = "quantum"
	StrategyAttention RoutingStrategy = "attention"
	StrategyCausal    RoutingStrategy = "causal"
	StrategyEmergent  RoutingStrategy = "emergent"
	StrategyHybrid    RoutingStrategy = "hybrid"
)

// RoutingDecision is the quantum router's output for one query.
type RoutingDecision struct {
	Strategy      RoutingStrategy
	Confidence    float32
	TargetContext string
}

// Multiplier returns the effective_limit multiplier for this strategy,
// per §4.3.3: Quantum 1.5c, Attention c, Causal 1.2c, Emergent 1.0,
// Hybrid 1.1c.
func (d RoutingDecision) Multiplier() float32 {
	c := d.Confidence
	switch d.Strategy {
	case StrategyQuantum:
		return 1.5 * c
	case StrategyAttention:
		return c
	case StrategyCausal:
		return 1.2 * c
	case StrategyEmergent:
		return 1.0
	case StrategyHybrid:
		return 1.1 * c
	default:
		return c
	}
}

// SearchFilter narrows search_memories results by type, importance, and
// creation time.
type SearchFilter struct {
	Types          []MemoryType
	ImportanceLow  float32
	ImportanceHigh float32
	TimeStart      time.Time
	TimeEnd        time.Time
}

// Matches reports whether a node satisfies the filter. A zero-value
// field in the filter is treated as "unset" and does not constrain.
func (f *SearchFilter) Matches(n *MemoryNode) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == n.MemoryType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ImportanceHigh > 0 && (n.Metadata.Importance < f.ImportanceLow || n.Metadata.Importance > f.ImportanceHigh) {
		return false
	}
	if !f.TimeStart.IsZero() && n.CreatedAt.Before(f.TimeStart) {
		return false
	}
	if !f.TimeEnd.IsZero() && !n.CreatedAt.Before(f.TimeEnd) {
		return false
	}
	return true
}
