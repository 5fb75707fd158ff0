// Package committee implements §4.5's committee evaluator: parallel
// multi-model quality scoring combined into a single weighted consensus
// score.
package committee

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// Backend performs one model's evaluation of a piece of text. Backends
// are expected to enforce their own per-call timeout internally based on
// the context deadline the evaluator sets.
type Backend interface {
	Evaluate(ctx context.Context, model ModelType, text string) (domain.CommitteeEvaluation, error)
}

// Config is the committee's tunable policy, validated once at
// construction time rather than on every call.
type Config struct {
	Models                   []ModelType
	TimeoutMs                int
	ConsensusThreshold       float32
	MaxConcurrentEvaluations int
	EnableCaching            bool
	QualityThreshold         float32
}

// Validate enforces the configuration bounds from §4.5 up front, so a
// misconfigured committee fails at startup rather than mid-evaluation.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return domain.NewValidationError("models", "", domain.ErrEmptyCommittee)
	}
	if len(c.Models) > MaxCommitteeSize {
		return domain.NewValidationError("models", fmt.Sprintf("%d", len(c.Models)), domain.ErrTooManyModels)
	}
	if c.TimeoutMs < 5000 || c.TimeoutMs > 300000 {
		return domain.NewValidationError("timeout_ms", fmt.Sprintf("%d", c.TimeoutMs), domain.ErrThresholdOutOfRange)
	}
	if c.ConsensusThreshold < 0.5 || c.ConsensusThreshold > 1.0 {
		return domain.NewValidationError("consensus_threshold", fmt.Sprintf("%v", c.ConsensusThreshold), domain.ErrThresholdOutOfRange)
	}
	if c.MaxConcurrentEvaluations < 1 {
		return domain.NewValidationError("max_concurrent_evaluations", fmt.Sprintf("%d", c.MaxConcurrentEvaluations), domain.ErrThresholdOutOfRange)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return domain.NewValidationError("quality_threshold", fmt.Sprintf("%v", c.QualityThreshold), domain.ErrThresholdOutOfRange)
	}
	return nil
}

// Result is the committee's verdict for one piece of text.
type Result struct {
	Evaluations      []domain.CommitteeEvaluation
	WeightedScore    float32
	QualityMetric    float32
	ConsensusReached bool
}

// Evaluator runs a configured committee against arbitrary text.
type Evaluator struct {
	cfg     Config
	backend Backend
	cache   *qualityCache
}

// NewEvaluator validates cfg and builds an Evaluator. The cache is
// always constructed; EnableCaching just gates whether Evaluate
// consults it.
func NewEvaluator(cfg Config, backend Backend) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg, backend: backend, cache: newQualityCache(10_000, 300*time.Second)}, nil
}

type modelOutcome struct {
	eval domain.CommitteeEvaluation
	ok   bool
}

// Evaluate runs §4.5 steps 2-9: parallel per-model calls bounded by
// max_concurrent_evaluations, a weighted-consensus aggregate, and a
// consensus-threshold check.
func (e *Evaluator) Evaluate(ctx context.Context, text string) (Result, error) {
	if e.cfg.EnableCaching {
		if cached, ok := e.cache.get(text, e.cfg.Models, e.cfg.ConsensusThreshold); ok {
			return cached, nil
		}
	}

	globalCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	outcomes := make([]modelOutcome, len(e.cfg.Models))
	g, gCtx := errgroup.WithContext(globalCtx)
	g.SetLimit(e.cfg.MaxConcurrentEvaluations)
	for i, m := range e.cfg.Models {
		i, m := i, m
		g.Go(func() error {
			callCtx, cancelCall := context.WithTimeout(gCtx, m.PerModelTimeout())
			defer cancelCall()

			eval, err := e.backend.Evaluate(callCtx, m, text)
			if err != nil {
				// Per-model failure is recorded and excluded from consensus,
				// never propagated as a fatal error for the whole committee.
				outcomes[i] = modelOutcome{ok: false}
				return nil
			}
			eval.ModelID = m.RequestID
			outcomes[i] = modelOutcome{eval: eval, ok: true}
			return nil
		})
	}
	_ = g.Wait() // per-model errors are folded into outcomes[i], never returned here

	var evals []domain.CommitteeEvaluation
	for _, mo := range outcomes {
		if mo.ok {
			evals = append(evals, mo.eval)
		}
	}

	if len(evals) == 0 {
		return Result{}, domain.ErrInsufficientMembers
	}

	result := aggregate(e.cfg.Models, evals, e.cfg.ConsensusThreshold)
	if !result.ConsensusReached {
		return result, domain.ErrConsensusNotReached
	}

	if e.cfg.EnableCaching {
		e.cache.put(text, e.cfg.Models, e.cfg.ConsensusThreshold, result)
	}
	return result, nil
}

// aggregate implements §4.5 steps 6-9 over a fixed set of per-model
// evaluations. It looks the evaluating model's weight back up by
// request id, since evals don't carry the ModelType itself.
func aggregate(models []ModelType, evals []domain.CommitteeEvaluation, consensusThreshold float32) Result {
	strengthByID := make(map[string]float32, len(models))
	for _, m := range models {
		strengthByID[m.RequestID] = m.StrengthWeight
	}

	var weightedSum, weightSum float32
	var qualitySum float32
	agreeCount := 0
	for _, ev := range evals {
		if roundedOutcome(ev.Score) == majorityOutcome(evals) {
			agreeCount++
		}
	}

	for _, ev := range evals {
		strength := strengthByID[ev.ModelID]
		w := strength * ev.Confidence * (ev.ObjectiveAlignment+ev.ImplementationQuality)/2 * (1 - 0.3*ev.RiskAssessment)
		weightedSum += w * ev.Score
		weightSum += w

		qualitySum += 0.35*ev.ObjectiveAlignment + 0.25*ev.ImplementationQuality + 0.25*ev.Confidence + 0.15*(1-ev.RiskAssessment)
	}

	var finalScore float32
	if weightSum > 0 {
		finalScore = weightedSum / weightSum
	}
	qualityMetric := qualitySum / float32(len(evals))
	consensusFraction := float32(agreeCount) / float32(len(evals))

	return Result{
		Evaluations:      evals,
		WeightedScore:    finalScore,
		QualityMetric:    qualityMetric,
		ConsensusReached: consensusFraction >= consensusThreshold,
	}
}

func roundedOutcome(score float32) bool {
	return score >= 0.5
}

func majorityOutcome(evals []domain.CommitteeEvaluation) bool {
	trueCount := 0
	for _, ev := range evals {
		if roundedOutcome(ev.Score) {
			trueCount++
		}
	}
	return trueCount*2 >= len(evals)
}
