package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// nodeToMap flattens a MemoryNode into Neo4j node properties. Custom
// metadata is JSON-encoded since Neo4j properties cannot nest arbitrary
// maps; content_hash is stored as a decimal string so a 64-bit value
// never overflows Neo4j's signed integer.
func nodeToMap(n *domain.MemoryNode) map[string]any {
	customJSON, _ := json.Marshal(n.Metadata.Custom)

	embedding := make([]float64, len(n.Embedding))
	for i, v := range n.Embedding {
		embedding[i] = float64(v)
	}

	return map[string]any{
		"id":                n.ID,
		"content":           n.Content,
		"content_hash":      strconv.FormatUint(n.ContentHash, 10),
		"memory_type":       string(n.MemoryType),
		"embedding":         embedding,
		"created_at":        n.CreatedAt,
		"updated_at":        n.UpdatedAt,
		"last_accessed_at":  n.LastAccessedAt,
		"importance":        float64(n.Metadata.Importance),
		"keywords":          n.Metadata.Keywords,
		"tags":              n.Metadata.Tags,
		"source":            n.Metadata.Source,
		"custom_json":       string(customJSON),
		"evaluation_status": string(n.EvaluationStatus),
	}
}

func nodeFromProps(props map[string]any) (*domain.MemoryNode, error) {
	hash, err := strconv.ParseUint(strProp(props, "content_hash"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: content_hash %q: %v", domain.ErrCorrupt, strProp(props, "content_hash"), err)
	}

	var embedding []float32
	switch raw := props["embedding"].(type) {
	case []any:
		embedding = make([]float32, len(raw))
		for i, v := range raw {
			if f, ok := v.(float64); ok {
				embedding[i] = float32(f)
			}
		}
	case []float64:
		embedding = make([]float32, len(raw))
		for i, f := range raw {
			embedding[i] = float32(f)
		}
	}

	custom := map[string]any{}
	if cj := strProp(props, "custom_json"); cj != "" {
		_ = json.Unmarshal([]byte(cj), &custom)
	}

	return &domain.MemoryNode{
		ID:             strProp(props, "id"),
		Content:        strProp(props, "content"),
		ContentHash:    hash,
		MemoryType:     domain.MemoryType(strProp(props, "memory_type")),
		Embedding:      embedding,
		CreatedAt:      timeProp(props, "created_at"),
		UpdatedAt:      timeProp(props, "updated_at"),
		LastAccessedAt: timeProp(props, "last_accessed_at"),
		Metadata: domain.Metadata{
			Importance: float32(floatProp(props, "importance")),
			Keywords:   strSliceProp(props, "keywords"),
			Tags:       strSliceProp(props, "tags"),
			Source:     strProp(props, "source"),
			Custom:     custom,
		},
		EvaluationStatus: domain.EvaluationStatus(strProp(props, "evaluation_status")),
	}, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func strSliceProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeProp(props map[string]any, key string) time.Time {
	if v, ok := props[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// sanitizeRelType ensures an entanglement type maps to a valid,
// uppercased Cypher relationship-type identifier.
func sanitizeRelType(t domain.EntanglementType) string {
	safe := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "ENTANGLED"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 'a' - 'A'
		}
	}
	return "ENTANGLED_" + string(safe)
}
