// Package llmadapter defines the engine's only view of the external LLM
// inference backend: embed, complete, and call_tool. Nothing upstream of
// this package knows or cares which model runtime serves them.
package llmadapter

import "context"

// Embedder turns text into a fixed-dimension vector. Implementations must
// keep the returned dimension self-consistent across one process
// lifetime (I6, P4).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionChunk is the tagged variant streamed back from Complete, one
// value per model-emitted event.
type CompletionChunk struct {
	Kind ChunkKind

	Text string // Kind == ChunkText

	// Kind == ChunkComplete
	FinishReason string
	Usage        Usage

	// Kind == ChunkToolCallStart / ChunkToolCall / ChunkToolCallComplete
	ToolCallID    string
	ToolName      string
	PartialInput  string
	ToolInput     string

	// Kind == ChunkError
	Err error
}

// ChunkKind names one branch of the CompletionChunk tagged variant.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkComplete
	ChunkToolCallStart
	ChunkToolCall
	ChunkToolCallComplete
	ChunkError
)

// Usage reports token accounting for a finished completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionParams configures one completion call.
type CompletionParams struct {
	Temperature      float32
	MaxTokens        int
	Tools            []ToolSpec
	AdditionalParams map[string]any
}

// ToolSpec describes one tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Completer streams a completion for a prompt. The returned channel is
// closed after a ChunkComplete or ChunkError, or without either when
// ctx is cancelled or the stream ends early; callers cancel by
// cancelling ctx, which is the only way to stop mid-stream.
type Completer interface {
	Complete(ctx context.Context, prompt string, params CompletionParams) (<-chan CompletionChunk, error)
}

// ToolCaller dispatches a named tool call to the (out of scope) WASM
// plugin host and returns its JSON response.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}
