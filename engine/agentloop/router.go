package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnemosdb/mnemos/pkg/llmadapter"
)

// ReasonerToolName is the built-in tool every Router registers
// unconditionally (§4.8 step 3): a no-op scratchpad the model can call
// to think out loud without any external side effect.
const ReasonerToolName = "reasoner"

// Router is the default ToolRouter: the built-in reasoner plus any
// caller-registered tools, dispatched by name.
type Router struct {
	mu      sync.RWMutex
	tools   map[string]llmadapter.ToolSpec
	callers map[string]func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// NewRouter builds a Router with the reasoner tool pre-registered.
func NewRouter() *Router {
	r := &Router{
		tools:   map[string]llmadapter.ToolSpec{},
		callers: map[string]func(ctx context.Context, args map[string]any) (map[string]any, error){},
	}
	r.Register(llmadapter.ToolSpec{
		Name:        ReasonerToolName,
		Description: "Record a private reasoning step; has no external effect.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"thought": map[string]any{"type": "string"}},
		},
	}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"acknowledged": true}, nil
	})
	return r
}

// Register adds or replaces a tool and its caller.
func (r *Router) Register(spec llmadapter.ToolSpec, fn func(ctx context.Context, args map[string]any) (map[string]any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = spec
	r.callers[spec.Name] = fn
}

// Tools returns every registered tool spec, built-in and caller-added.
func (r *Router) Tools() []llmadapter.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llmadapter.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// CallTool dispatches name to its registered caller.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.callers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agentloop: no tool registered under name %q", name)
	}
	return fn(ctx, args)
}

var _ ToolRouter = (*Router)(nil)
