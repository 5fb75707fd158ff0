// Package agentloop orchestrates §4.8's one-turn agent loop: memory
// context injection, prompt assembly, streamed completion, tool-call
// dispatch, and post-turn episodic memory writes.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mnemosdb/mnemos/engine/coordinator"
	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/pkg/llmadapter"
)

// ChatLoopKind names one branch of the ChatLoop tagged variant.
type ChatLoopKind int

const (
	// Break ends the loop immediately with a "break" Complete chunk.
	Break ChatLoopKind = iota
	// UserPrompt starts a fresh turn from a new user message.
	UserPrompt
	// Reprompt re-issues a turn with an engine-synthesized message
	// (e.g. a tool-result follow-up), bypassing history assembly.
	Reprompt
)

// ChatLoop is one turn's input.
type ChatLoop struct {
	Kind    ChatLoopKind
	Message string
}

const (
	// DefaultMemoryReadTimeout is §6's memory_read_timeout_ms default.
	DefaultMemoryReadTimeout = 5 * time.Second
	// memoryTokenBudget approximates §4.8's "~1000 tokens" cap for the
	// injected memory block.
	memoryTokenBudget = 1000
	// searchTopK is the fixed top_k passed to search_memories (§4.8 step 4).
	searchTopK = 5
)

// ToolRouter dispatches a named tool call, built-in reasoner always
// registered alongside any caller-supplied tools.
type ToolRouter interface {
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	Tools() []llmadapter.ToolSpec
}

// Config is one agent's static turn configuration (§6's per-agent
// options).
type Config struct {
	SystemPrompt          string
	Temperature           float32
	MaxTokens             int
	AdditionalParams      map[string]any
	MemoryReadTimeout     time.Duration
	MemoryEnabled         bool
	EpisodicMetadata      map[string]any
}

func (c Config) memoryReadTimeout() time.Duration {
	if c.MemoryReadTimeout <= 0 {
		return DefaultMemoryReadTimeout
	}
	return c.MemoryReadTimeout
}

// ChunkCallback is invoked for every chunk before it reaches the
// caller's output stream; returning false suppresses that chunk.
type ChunkCallback func(llmadapter.CompletionChunk) bool

// ToolResultCallback observes a completed tool call's response.
type ToolResultCallback func(name string, response map[string]any)

// ConversationTurnCallback receives the finished {user, assistant}
// exchange and a recursive Loop handle sharing this loop's coordinator
// and memory state, per the recursion policy recorded for §4.8 step 10:
// a recursive call is not special-cased away from memory, it shares
// the same state as its parent.
type ConversationTurnCallback func(ctx context.Context, turn ConversationTurn, recursive *Loop)

// ConversationTurn is the {user, assistant} pair synthesized after a turn.
type ConversationTurn struct {
	UserMessage      string
	AssistantMessage string
}

// Loop owns one agent's turn orchestration.
type Loop struct {
	completer   llmadapter.Completer
	coordinator *coordinator.Coordinator
	router      ToolRouter
	cfg         Config
	log         *slog.Logger

	OnChunk            ChunkCallback
	OnToolResult       ToolResultCallback
	OnConversationTurn ConversationTurnCallback
}

// New builds a Loop. coordinator may be nil, in which case memory
// injection and episodic writes are both skipped regardless of
// cfg.MemoryEnabled.
func New(completer llmadapter.Completer, coord *coordinator.Coordinator, router ToolRouter, cfg Config, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{completer: completer, coordinator: coord, router: router, cfg: cfg, log: log}
}

// RunTurn implements §4.8's one-turn orchestration, streaming chunks on
// the returned channel. The channel is always closed, and its last
// value is always a Complete or Error chunk (§7).
func (l *Loop) RunTurn(ctx context.Context, turn ChatLoop) <-chan llmadapter.CompletionChunk {
	out := make(chan llmadapter.CompletionChunk, 8)

	if turn.Kind == Break {
		go func() {
			defer close(out)
			l.emit(out, llmadapter.CompletionChunk{Kind: llmadapter.ChunkComplete, FinishReason: "break"})
		}()
		return out
	}

	go func() {
		defer close(out)
		l.runTurn(ctx, turn, out)
	}()
	return out
}

func (l *Loop) runTurn(ctx context.Context, turn ChatLoop, out chan<- llmadapter.CompletionChunk) {
	memoryBlock := ""
	if l.cfg.MemoryEnabled && l.coordinator != nil {
		memoryBlock = l.injectMemory(ctx, turn.Message)
	}

	fullPrompt := l.assemblePrompt(turn.Message, memoryBlock)

	tools := []llmadapter.ToolSpec{}
	if l.router != nil {
		tools = l.router.Tools()
	}
	params := llmadapter.CompletionParams{
		Temperature:      l.cfg.Temperature,
		MaxTokens:        l.cfg.MaxTokens,
		Tools:            tools,
		AdditionalParams: l.cfg.AdditionalParams,
	}

	chunks, err := l.completer.Complete(ctx, fullPrompt, params)
	if err != nil {
		l.emit(out, llmadapter.CompletionChunk{Kind: llmadapter.ChunkError, Err: err})
		return
	}

	var assistant strings.Builder
	var finishReason string
	var usage llmadapter.Usage

	for chunk := range chunks {
		switch chunk.Kind {
		case llmadapter.ChunkText:
			assistant.WriteString(chunk.Text)
		case llmadapter.ChunkComplete:
			finishReason = chunk.FinishReason
			usage = chunk.Usage
		case llmadapter.ChunkToolCallComplete:
			l.dispatchToolCall(ctx, chunk, out)
			continue
		}
		l.emit(out, chunk)
	}

	if finishReason == "" {
		finishReason = "stop"
	}
	l.emit(out, llmadapter.CompletionChunk{Kind: llmadapter.ChunkComplete, FinishReason: finishReason, Usage: usage})

	assistantText := assistant.String()
	if assistantText != "" && l.cfg.MemoryEnabled && l.coordinator != nil {
		l.writeEpisodicMemory(ctx, turn.Message, assistantText)
	}

	if l.OnConversationTurn != nil && assistantText != "" {
		recursive := &Loop{
			completer:   l.completer,
			coordinator: l.coordinator,
			router:      l.router,
			cfg:         l.cfg,
			log:         l.log,
		}
		l.OnConversationTurn(ctx, ConversationTurn{UserMessage: turn.Message, AssistantMessage: assistantText}, recursive)
	}
}

// dispatchToolCall implements §4.8 step 8: parse the tool call's JSON
// input, invoke it, and emit a Text chunk summarizing the result. A
// parse or execution failure becomes an Error chunk, never a turn abort.
func (l *Loop) dispatchToolCall(ctx context.Context, chunk llmadapter.CompletionChunk, out chan<- llmadapter.CompletionChunk) {
	l.emit(out, chunk)

	if l.router == nil {
		return
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(chunk.ToolInput), &args); err != nil {
		l.emit(out, llmadapter.CompletionChunk{Kind: llmadapter.ChunkError, Err: fmt.Errorf("agentloop: parse tool input for %s: %w", chunk.ToolName, err)})
		return
	}

	response, err := l.router.CallTool(ctx, chunk.ToolName, args)
	if err != nil {
		l.emit(out, llmadapter.CompletionChunk{Kind: llmadapter.ChunkError, Err: fmt.Errorf("agentloop: tool %s failed: %w", chunk.ToolName, err)})
		return
	}
	if l.OnToolResult != nil {
		l.OnToolResult(chunk.ToolName, response)
	}
	l.emit(out, llmadapter.CompletionChunk{
		Kind: llmadapter.ChunkText,
		Text: fmt.Sprintf("Tool '%s' executed: %v", chunk.ToolName, response),
	})
}

func (l *Loop) emit(out chan<- llmadapter.CompletionChunk, chunk llmadapter.CompletionChunk) {
	if l.OnChunk != nil && !l.OnChunk(chunk) {
		return
	}
	out <- chunk
}

// assemblePrompt implements §4.8 step 5.
func (l *Loop) assemblePrompt(userMessage, memoryBlock string) string {
	var b strings.Builder
	b.WriteString(l.cfg.SystemPrompt)
	if memoryBlock != "" {
		b.WriteString(memoryBlock)
	}
	b.WriteString("\nUser: ")
	b.WriteString(userMessage)
	return b.String()
}

// writeEpisodicMemory implements §4.8 step 9.
func (l *Loop) writeEpisodicMemory(ctx context.Context, userMessage, assistantMessage string) {
	meta := domain.NewMetadata(0.8, nil, []string{"chat"}, "agent_loop")
	for k, v := range l.cfg.EpisodicMetadata {
		meta.Custom[k] = v
	}

	if _, err := l.coordinator.AddMemory(ctx, userMessage, domain.MemoryTypeEpisodic, meta); err != nil {
		l.log.Warn("agentloop: failed to persist user episodic memory", "error", err)
	}
	if _, err := l.coordinator.AddMemory(ctx, assistantMessage, domain.MemoryTypeEpisodic, meta); err != nil {
		l.log.Warn("agentloop: failed to persist assistant episodic memory", "error", err)
	}
}
