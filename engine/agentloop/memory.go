package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// approxTokens implements §5's chars/4 approximation. It is
// monotonic (strictly non-decreasing) in len(s), so token-budget
// truncation never exhibits non-monotonic surprises as content grows.
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}

// injectMemory implements §4.8 step 4: a cooperatively-timed
// search_memories call formatted into a bounded "Relevant Context from
// Memory" block. A timeout yields an empty block rather than failing
// the turn.
func (l *Loop) injectMemory(ctx context.Context, userMessage string) string {
	timeoutCtx, cancel := context.WithTimeout(ctx, l.cfg.memoryReadTimeout())
	defer cancel()

	type searchOutcome struct {
		nodes []*domain.MemoryNode
		err   error
	}
	resultCh := make(chan searchOutcome, 1)
	go func() {
		nodes, err := l.coordinator.SearchMemories(timeoutCtx, userMessage, nil, searchTopK)
		resultCh <- searchOutcome{nodes: nodes, err: err}
	}()

	select {
	case <-timeoutCtx.Done():
		l.log.Warn("agentloop: memory injection timed out, proceeding with empty context")
		return ""
	case res := <-resultCh:
		if res.err != nil {
			l.log.Warn("agentloop: search_memories failed, proceeding with empty context", "error", res.err)
			return ""
		}
		return formatMemoryBlock(res.nodes)
	}
}

// formatMemoryBlock implements §4.8 step 4's formatting: a
// `[Relevance: x.xx]` prefix per item, stopping before the block
// exceeds memoryTokenBudget approximated tokens.
func formatMemoryBlock(nodes []*domain.MemoryNode) string {
	if len(nodes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nRelevant Context from Memory:\n")
	budget := memoryTokenBudget - approxTokens(b.String())

	for _, n := range nodes {
		relevance := n.Metadata.Importance
		if n.RelevanceScore != nil {
			relevance = *n.RelevanceScore
		}
		line := fmt.Sprintf("[Relevance: %.2f] %s\n", relevance, n.Content)
		if approxTokens(line) > budget {
			break
		}
		b.WriteString(line)
		budget -= approxTokens(line)
	}
	return b.String()
}
