// Package main implements mnemosd, the memory engine's agent-loop
// HTTP server: a turn endpoint over the coordinator/committee/quantum
// stack, streamed as server-sent events.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mnemosdb/mnemos/engine/agentloop"
	"github.com/mnemosdb/mnemos/engine/committee"
	"github.com/mnemosdb/mnemos/engine/coordinator"
	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/engine/quantum"
	"github.com/mnemosdb/mnemos/engine/queue"
	"github.com/mnemosdb/mnemos/engine/store"
	"github.com/mnemosdb/mnemos/pkg/llmadapter"
	"github.com/mnemosdb/mnemos/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	QdrantURL  string
	Collection string
	CORSOrigin string

	OllamaURL  string
	EmbedModel string
	ChatModel  string

	AnthropicAPIKey string
	OpenAIAPIKey    string

	NatsURL string

	WorkerCount     int
	LazyEvalMode    string
	DecayRate       float64
	SystemPrompt    string
}

func loadConfig() Config {
	decayRate, err := strconv.ParseFloat(envOr("DECAY_RATE", "0.1"), 64)
	if err != nil {
		decayRate = coordinator.DefaultDecayRate
	}
	workerCount, err := strconv.Atoi(envOr("WORKER_COUNT", "4"))
	if err != nil || workerCount <= 0 {
		workerCount = queue.DefaultWorkerCount
	}
	return Config{
		Port:            envOr("PORT", "8081"),
		Neo4jURL:        envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:       envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:       envOr("NEO4J_PASS", "password"),
		QdrantURL:       envOr("QDRANT_URL", "localhost:6334"),
		Collection:      envOr("QDRANT_COLLECTION", "mnemos"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		OllamaURL:       envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:      envOr("EMBED_MODEL", "nomic-embed-text"),
		ChatModel:       envOr("CHAT_MODEL", "llama3.1:8b"),
		AnthropicAPIKey: envOr("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    envOr("OPENAI_API_KEY", ""),
		NatsURL:         envOr("NATS_URL", ""),
		WorkerCount:     workerCount,
		LazyEvalMode:    envOr("LAZY_EVAL_MODE", "return_partial"),
		DecayRate:       decayRate,
		SystemPrompt:    envOr("SYSTEM_PROMPT", "You are mnemos, a memory-augmented assistant. Use the provided context faithfully and say when you don't know."),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func lazyEvalStrategy(mode string) coordinator.LazyEvalStrategy {
	switch mode {
	case "wait_for_completion":
		return coordinator.LazyWaitForCompletion
	case "trigger_and_wait":
		return coordinator.LazyTriggerAndWait
	default:
		return coordinator.LazyReturnPartial
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	// --- Connect to Qdrant ---
	vectorIndex, err := store.NewQdrantIndex(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}

	memStore := store.New(neo4jDriver, vectorIndex)

	// --- Optional NATS completion fanout ---
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	// --- Ollama, the always-available embedder/completer/tool-caller ---
	ollamaClient := llmadapter.NewOllamaClient(cfg.OllamaURL, cfg.EmbedModel, cfg.ChatModel, nil)

	// --- Committee evaluator over Anthropic/OpenAI/Ollama ---
	backend := committee.NewMultiBackend(cfg.AnthropicAPIKey, cfg.OpenAIAPIKey, ollamaClient)
	committeeEval, err := committee.NewEvaluator(committee.Config{
		Models:                   []committee.ModelType{committee.ModelClaudeHaiku, committee.ModelGPTMini, committee.ModelOllamaLocal},
		TimeoutMs:                30000,
		ConsensusThreshold:       0.6,
		MaxConcurrentEvaluations: 4,
		EnableCaching:            true,
		QualityThreshold:         0.5,
	}, backend)
	if err != nil {
		return fmt.Errorf("committee evaluator: %w", err)
	}

	// --- Quantum coherence state and router ---
	quantumState := quantum.New(1.0)
	quantumRouter := quantum.NewRouter(quantumState, nil)

	// --- Cognitive task queue and worker pool ---
	taskQueue := queue.New()

	coord := coordinator.New(memStore, ollamaClient, taskQueue, quantumRouter, quantumState, committeeEval, coordinator.Config{
		LazyEval:  lazyEvalStrategy(cfg.LazyEvalMode),
		DecayRate: cfg.DecayRate,
	}, logger)

	pool := queue.NewPool(taskQueue, coord.Handler, cfg.WorkerCount, nc, logger)
	pool.Start(ctx)

	// --- Agent loop ---
	toolRouter := agentloop.NewRouter()
	loop := agentloop.New(ollamaClient, coord, toolRouter, agentloop.Config{
		SystemPrompt:  cfg.SystemPrompt,
		Temperature:   0.4,
		MaxTokens:     1024,
		MemoryEnabled: true,
	}, logger)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/turn", handleTurn(loop, logger))
	mux.HandleFunc("POST /api/memories", handleAddMemory(coord, logger))
	mux.HandleFunc("GET /api/memories/{id}", handleGetMemory(coord, logger))
	mux.HandleFunc("GET /api/memories/search", handleSearchMemories(coord, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mnemosd starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coord.Shutdown()
	pool.Wait()

	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// TurnRequest is the JSON body for POST /api/turn.
type TurnRequest struct {
	Message string `json:"message"`
}

func handleTurn(loop *agentloop.Loop, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		chunks := loop.RunTurn(r.Context(), agentloop.ChatLoop{Kind: agentloop.UserPrompt, Message: req.Message})
		for chunk := range chunks {
			wire := turnChunk{
				Text:         chunk.Text,
				FinishReason: chunk.FinishReason,
				ToolName:     chunk.ToolName,
				ToolInput:    chunk.ToolInput,
			}
			if chunk.Err != nil {
				wire.Error = chunk.Err.Error()
			}
			data, err := json.Marshal(wire)
			if err != nil {
				logger.Warn("mnemosd: chunk marshal failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", chunkEventName(chunk.Kind), data)
			flusher.Flush()
		}
	}
}

// turnChunk is the JSON wire shape of a streamed chunk, stripped of the
// internal error interface and untagged fields CompletionChunk carries.
type turnChunk struct {
	Text         string `json:"text,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	ToolInput    string `json:"tool_input,omitempty"`
	Error        string `json:"error,omitempty"`
}

func chunkEventName(kind llmadapter.ChunkKind) string {
	switch kind {
	case llmadapter.ChunkError:
		return "error"
	case llmadapter.ChunkComplete:
		return "done"
	case llmadapter.ChunkToolCallComplete:
		return "tool_call"
	default:
		return "token"
	}
}

// AddMemoryRequest is the JSON body for POST /api/memories.
type AddMemoryRequest struct {
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Importance float32  `json:"importance"`
	Keywords   []string `json:"keywords"`
	Tags       []string `json:"tags"`
	Source     string   `json:"source"`
}

func handleAddMemory(coord *coordinator.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddMemoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
			http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
			return
		}
		memType := domain.CollapseMemoryType(req.Type)
		meta := domain.NewMetadata(req.Importance, req.Keywords, req.Tags, req.Source)

		node, err := coord.AddMemory(r.Context(), req.Content, memType, meta)
		if err != nil {
			logger.Error("mnemosd: add memory failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(node)
	}
}

func handleGetMemory(coord *coordinator.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		node, err := coord.GetMemory(r.Context(), id)
		if err != nil {
			logger.Error("mnemosd: get memory failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		if node == nil {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(node)
	}
}

func handleSearchMemories(coord *coordinator.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := q.Get("q")
		if query == "" {
			http.Error(w, `{"error":"q is required"}`, http.StatusBadRequest)
			return
		}
		topK := 10
		if v := q.Get("top_k"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				topK = n
			}
		}

		nodes, err := coord.SearchMemories(r.Context(), query, nil, topK)
		if err != nil {
			logger.Error("mnemosd: search memories failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(nodes)
	}
}
