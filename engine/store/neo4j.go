package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const nodeLabel = "MemoryNode"

// neo4jBackend is the Neo4j-backed half of CompositeStore: node CRUD via
// the generic repository, plus hash/temporal/pattern search and the
// entanglement edge table, none of which the generic repo covers.
type neo4jBackend struct {
	driver neo4j.DriverWithContext
	nodes  *repo.Neo4jRepo[*domain.MemoryNode, string]
}

// newNeo4jBackend builds a neo4jBackend over an already-connected
// driver.
func newNeo4jBackend(driver neo4j.DriverWithContext) *neo4jBackend {
	return &neo4jBackend{
		driver: driver,
		nodes: repo.NewNeo4jRepo[*domain.MemoryNode, string](
			driver,
			nodeLabel,
			func(n *domain.MemoryNode) map[string]any { return nodeToMap(n) },
			func(rec *neo4j.Record) (*domain.MemoryNode, error) {
				node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
				if err != nil {
					return nil, err
				}
				return nodeFromProps(node.Props)
			},
		),
	}
}

func (b *neo4jBackend) create(ctx context.Context, n *domain.MemoryNode) (*domain.MemoryNode, error) {
	return b.nodes.Create(ctx, n)
}

func (b *neo4jBackend) get(ctx context.Context, id string) (*domain.MemoryNode, error) {
	n, err := b.nodes.Get(ctx, id)
	if err != nil {
		if err.Error() == fmt.Sprintf("%s not found", nodeLabel) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (b *neo4jBackend) update(ctx context.Context, n *domain.MemoryNode) (*domain.MemoryNode, error) {
	return b.nodes.Update(ctx, n)
}

func (b *neo4jBackend) delete(ctx context.Context, id string) error {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (n:MemoryNode {id: $id})-[r]-() DELETE r`, map[string]any{"id": id}); err != nil {
			return nil, err
		}
		return tx.Run(ctx, `MATCH (n:MemoryNode {id: $id}) DELETE n`, map[string]any{"id": id})
	})
	return err
}

func (b *neo4jBackend) searchByContent(ctx context.Context, substr string, limit int) ([]*domain.MemoryNode, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:MemoryNode) WHERE toLower(n.content) CONTAINS toLower($substr)
	           RETURN n ORDER BY n.id LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"substr": substr, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

// searchByPattern is best-effort (§9 open question): a case-insensitive
// regex match against content. An invalid pattern yields an empty
// result rather than surfacing a store error, since callers never use
// it to gate correctness.
func (b *neo4jBackend) searchByPattern(ctx context.Context, pattern string, limit int) ([]*domain.MemoryNode, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:MemoryNode) WHERE n.content =~ $pattern
	           RETURN n ORDER BY n.id LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"pattern": "(?i).*" + pattern + ".*", "limit": int64(limit)})
	if err != nil {
		return nil, nil
	}
	return collectNodes(ctx, result)
}

func (b *neo4jBackend) searchByTemporal(ctx context.Context, start, end time.Time, limit int) ([]*domain.MemoryNode, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:MemoryNode) WHERE n.created_at >= $start AND n.created_at < $end
	           RETURN n ORDER BY n.created_at DESC LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"start": start, "end": end, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

func (b *neo4jBackend) findByHash(ctx context.Context, hash uint64) (*domain.MemoryNode, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:MemoryNode {content_hash: $hash}) RETURN n LIMIT 1`
	result, err := sess.Run(ctx, cypher, map[string]any{"hash": fmt.Sprintf("%d", hash)})
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
	if err != nil {
		return nil, err
	}
	return nodeFromProps(node.Props)
}

func (b *neo4jBackend) updateTimestampsByHash(ctx context.Context, hash uint64, ts time.Time) (bool, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:MemoryNode {content_hash: $hash})
	           SET n.created_at = $ts, n.updated_at = $ts
	           RETURN n.id AS id`
	result, err := sess.Run(ctx, cypher, map[string]any{"hash": fmt.Sprintf("%d", hash), "ts": ts})
	if err != nil {
		return false, err
	}
	return result.Next(ctx), nil
}

func (b *neo4jBackend) createEdge(ctx context.Context, e domain.EntanglementEdge) (domain.EntanglementEdge, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (a:MemoryNode {id: $from}), (b:MemoryNode {id: $to})
		 MERGE (a)-[r:%s]->(b)
		 SET r.strength = $strength, r.type = $type`,
		sanitizeRelType(e.Type),
	)
	_, err := sess.Run(ctx, cypher, map[string]any{
		"from":     e.From,
		"to":       e.To,
		"strength": float64(e.Strength),
		"type":     string(e.Type),
	})
	if err != nil {
		return domain.EntanglementEdge{}, err
	}
	return e, nil
}

func (b *neo4jBackend) edgesOf(ctx context.Context, id string, minStrength float32) ([]domain.EntanglementEdge, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (a:MemoryNode {id: $id})-[r]-(b:MemoryNode)
	           WHERE r.strength >= $min
	           RETURN a.id AS from, b.id AS to, r.strength AS strength, r.type AS type`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id, "min": float64(minStrength)})
	if err != nil {
		return nil, err
	}
	return collectEdges(ctx, result)
}

func (b *neo4jBackend) edgesOfType(ctx context.Context, id string, t domain.EntanglementType) ([]domain.EntanglementEdge, error) {
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (a:MemoryNode {id: $id})-[r]-(b:MemoryNode)
	           WHERE r.type = $type
	           RETURN a.id AS from, b.id AS to, r.strength AS strength, r.type AS type`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id, "type": string(t)})
	if err != nil {
		return nil, err
	}
	return collectEdges(ctx, result)
}

func (b *neo4jBackend) traverse(ctx context.Context, id string, maxDepth int) ([]*domain.MemoryNode, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	sess := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:MemoryNode {id: $id})-[*1..%d]-(n:MemoryNode)
		 WHERE n.id <> $id
		 RETURN DISTINCT n`, maxDepth)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

func collectNodes(ctx context.Context, result neo4j.ResultWithContext) ([]*domain.MemoryNode, error) {
	var items []*domain.MemoryNode
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, err
		}
		parsed, err := nodeFromProps(node.Props)
		if err != nil {
			return nil, err
		}
		items = append(items, parsed)
	}
	return items, nil
}

func collectEdges(ctx context.Context, result neo4j.ResultWithContext) ([]domain.EntanglementEdge, error) {
	var items []domain.EntanglementEdge
	for result.Next(ctx) {
		rec := result.Record()
		from, _ := rec.Get("from")
		to, _ := rec.Get("to")
		strength, _ := rec.Get("strength")
		typ, _ := rec.Get("type")

		e := domain.EntanglementEdge{}
		if s, ok := from.(string); ok {
			e.From = s
		}
		if s, ok := to.(string); ok {
			e.To = s
		}
		if f, ok := strength.(float64); ok {
			e.Strength = float32(f)
		}
		if s, ok := typ.(string); ok {
			e.Type = domain.EntanglementType(s)
		}
		items = append(items, e)
	}
	return items, nil
}
