// Package store is the engine's only view of the underlying
// document+vector+graph database: a Store interface it treats as an
// external collaborator, plus a default implementation composing Neo4j
// (nodes, edges, content-hash index, temporal/pattern search) with
// Qdrant (kNN cosine search over embeddings).
package store

import (
	"context"
	"time"

	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store is the document/vector/graph contract the coordinator, the
// queue's workers, and the quantum router depend on. Every method
// returns a typed error; Get/FindByHash return (nil, nil) on a clean
// miss rather than an error.
type Store interface {
	Create(ctx context.Context, node *domain.MemoryNode) (*domain.MemoryNode, error)
	Get(ctx context.Context, id string) (*domain.MemoryNode, error)
	Update(ctx context.Context, node *domain.MemoryNode) (*domain.MemoryNode, error)
	Delete(ctx context.Context, id string) error

	SearchByContent(ctx context.Context, substr string, limit int) ([]*domain.MemoryNode, error)
	SearchByVector(ctx context.Context, vector []float32, k int) ([]*domain.MemoryNode, error)
	SearchByTemporal(ctx context.Context, start, end time.Time, limit int) ([]*domain.MemoryNode, error)
	SearchByPattern(ctx context.Context, pattern string, limit int) ([]*domain.MemoryNode, error)

	FindByHash(ctx context.Context, hash uint64) (*domain.MemoryNode, error)
	UpdateTimestampsByHash(ctx context.Context, hash uint64, ts time.Time) (bool, error)

	CreateEdge(ctx context.Context, edge domain.EntanglementEdge) (domain.EntanglementEdge, error)
	EdgesOf(ctx context.Context, id string, minStrength float32) ([]domain.EntanglementEdge, error)
	EdgesOfType(ctx context.Context, id string, t domain.EntanglementType) ([]domain.EntanglementEdge, error)
	Traverse(ctx context.Context, id string, maxDepth int) ([]*domain.MemoryNode, error)
}

// VectorIndex is the narrower kNN-search collaborator the composite
// Store delegates to; it is its own interface so tests can substitute
// an in-memory index without standing up Qdrant.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, embedding []float32, k int) ([]VectorHit, error)
}

// VectorHit is one kNN result: a memory id and its cosine similarity.
type VectorHit struct {
	ID    string
	Score float32
}

// CompositeStore implements Store by pairing a Neo4j-backed node/edge
// backend with a pluggable VectorIndex for kNN search.
type CompositeStore struct {
	nodes  *neo4jBackend
	vector VectorIndex
}

// New builds a CompositeStore over a connected Neo4j driver and a
// VectorIndex (typically *QdrantIndex).
func New(driver neo4j.DriverWithContext, vector VectorIndex) *CompositeStore {
	return &CompositeStore{nodes: newNeo4jBackend(driver), vector: vector}
}

func (s *CompositeStore) Create(ctx context.Context, node *domain.MemoryNode) (*domain.MemoryNode, error) {
	created, err := s.nodes.create(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(created.Embedding) > 0 {
		if err := s.vector.Upsert(ctx, created.ID, created.Embedding); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *CompositeStore) Get(ctx context.Context, id string) (*domain.MemoryNode, error) {
	return s.nodes.get(ctx, id)
}

func (s *CompositeStore) Update(ctx context.Context, node *domain.MemoryNode) (*domain.MemoryNode, error) {
	updated, err := s.nodes.update(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(updated.Embedding) > 0 {
		if err := s.vector.Upsert(ctx, updated.ID, updated.Embedding); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func (s *CompositeStore) Delete(ctx context.Context, id string) error {
	if err := s.nodes.delete(ctx, id); err != nil {
		return err
	}
	return s.vector.Delete(ctx, id)
}

func (s *CompositeStore) SearchByContent(ctx context.Context, substr string, limit int) ([]*domain.MemoryNode, error) {
	return s.nodes.searchByContent(ctx, substr, limit)
}

func (s *CompositeStore) SearchByVector(ctx context.Context, vector []float32, k int) ([]*domain.MemoryNode, error) {
	hits, err := s.vector.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	nodes := make([]*domain.MemoryNode, 0, len(hits))
	for _, h := range hits {
		n, err := s.nodes.get(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		score := h.Score
		n.RelevanceScore = &score
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (s *CompositeStore) SearchByTemporal(ctx context.Context, start, end time.Time, limit int) ([]*domain.MemoryNode, error) {
	return s.nodes.searchByTemporal(ctx, start, end, limit)
}

func (s *CompositeStore) SearchByPattern(ctx context.Context, pattern string, limit int) ([]*domain.MemoryNode, error) {
	return s.nodes.searchByPattern(ctx, pattern, limit)
}

func (s *CompositeStore) FindByHash(ctx context.Context, hash uint64) (*domain.MemoryNode, error) {
	return s.nodes.findByHash(ctx, hash)
}

func (s *CompositeStore) UpdateTimestampsByHash(ctx context.Context, hash uint64, ts time.Time) (bool, error) {
	return s.nodes.updateTimestampsByHash(ctx, hash, ts)
}

func (s *CompositeStore) CreateEdge(ctx context.Context, edge domain.EntanglementEdge) (domain.EntanglementEdge, error) {
	return s.nodes.createEdge(ctx, edge)
}

func (s *CompositeStore) EdgesOf(ctx context.Context, id string, minStrength float32) ([]domain.EntanglementEdge, error) {
	return s.nodes.edgesOf(ctx, id, minStrength)
}

func (s *CompositeStore) EdgesOfType(ctx context.Context, id string, t domain.EntanglementType) ([]domain.EntanglementEdge, error) {
	return s.nodes.edgesOfType(ctx, id, t)
}

func (s *CompositeStore) Traverse(ctx context.Context, id string, maxDepth int) ([]*domain.MemoryNode, error) {
	return s.nodes.traverse(ctx, id, maxDepth)
}

var _ Store = (*CompositeStore)(nil)
