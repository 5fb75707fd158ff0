package quantum

import (
	"context"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// EdgeStore is the narrow slice of store.Store the entanglement
// operations need; kept as its own interface here so this package does
// not import engine/store just to depend on two methods.
type EdgeStore interface {
	EdgesOf(ctx context.Context, id string, minStrength float32) ([]domain.EntanglementEdge, error)
	Get(ctx context.Context, id string) (*domain.MemoryNode, error)
}

// ExpandViaEntanglement performs §4.6's one-hop graph expansion: for
// each seed id, follow edges at or above minStrength, returning
// neighbour nodes deduplicated against the seed set and each other.
func ExpandViaEntanglement(ctx context.Context, s EdgeStore, ids []string, minStrength float32) ([]*domain.MemoryNode, error) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	var out []*domain.MemoryNode
	for _, id := range ids {
		edges, err := s.EdgesOf(ctx, id, minStrength)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			neighbor := e.To
			if neighbor == id {
				neighbor = e.From
			}
			if seen[neighbor] {
				continue
			}
			seen[neighbor] = true

			n, err := s.Get(ctx, neighbor)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// TraverseEntanglementGraph performs §4.6's breadth-first, depth-bounded
// traversal from id, carrying a visited set so the naturally-cyclic
// graph never re-emits a node.
func TraverseEntanglementGraph(ctx context.Context, s EdgeStore, id string, maxDepth int) ([]*domain.MemoryNode, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []*domain.MemoryNode

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, current := range frontier {
			edges, err := s.EdgesOf(ctx, current, 0)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				neighbor := e.To
				if neighbor == current {
					neighbor = e.From
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				n, err := s.Get(ctx, neighbor)
				if err != nil {
					return nil, err
				}
				if n != nil {
					out = append(out, n)
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return out, nil
}
