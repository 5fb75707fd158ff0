package coordinator

import "time"

// LazyEvalStrategy is §6's configured policy for reading a memory whose
// committee evaluation has not completed yet.
type LazyEvalStrategy string

const (
	// LazyReturnPartial returns immediately with whatever status is
	// present; it is the default.
	LazyReturnPartial LazyEvalStrategy = "return_partial"
	// LazyWaitForCompletion polls every 100ms until the status leaves
	// Pending or 5s elapses, whichever comes first.
	LazyWaitForCompletion LazyEvalStrategy = "wait_for_completion"
	// LazyTriggerAndWait consults the committee's quality-score cache,
	// invoking the committee synchronously on a miss.
	LazyTriggerAndWait LazyEvalStrategy = "trigger_and_wait"
)

const (
	waitForCompletionPollEvery = 100 * time.Millisecond
	waitForCompletionTimeout   = 5 * time.Second

	// entanglementBoostFactor is §4.3.3 step 9's 0.2 coefficient.
	entanglementBoostFactor = 0.2

	// DefaultDecayRate is §6's decay_rate default.
	DefaultDecayRate = 0.1
)

// Config is the coordinator's tunable policy.
type Config struct {
	// LazyEval is read under a lock by GetMemory/SearchMemories so it
	// can be changed at runtime via SetLazyEvalStrategy.
	LazyEval LazyEvalStrategy
	// DecayRate is §4.3.4's r, in (0,1]. Zero resolves to DefaultDecayRate.
	DecayRate float64
}

func (c Config) decayRate() float64 {
	if c.DecayRate <= 0 {
		return DefaultDecayRate
	}
	return c.DecayRate
}
