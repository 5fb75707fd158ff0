package llmadapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaClient is the default Embedder+Completer, talking to a local
// Ollama instance over plain HTTP.
type OllamaClient struct {
	baseURL    string
	embedModel string
	chatModel  string
	client     *http.Client
}

// NewOllamaClient builds an OllamaClient. client may be nil to use
// http.DefaultClient.
func NewOllamaClient(baseURL, embedModel, chatModel string, client *http.Client) *OllamaClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaClient{baseURL: baseURL, embedModel: embedModel, chatModel: chatModel, client: client}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed implements Embedder against Ollama's /api/embeddings endpoint.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedReq{Model: c.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("llmadapter: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llmadapter: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmadapter: embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llmadapter: embed: ollama returned status %d", resp.StatusCode)
	}

	var parsed ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("llmadapter: decode embed response: %w", err)
	}

	out := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options"`
}

type ollamaChatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done           bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// Complete implements Completer against Ollama's native streaming
// /api/chat endpoint, translating line-delimited JSON chunks into
// CompletionChunk values. This adapter emits Text and Complete chunks,
// plus an Error chunk if reading the stream fails; it never emits
// tool-call chunks.
func (c *OllamaClient) Complete(ctx context.Context, prompt string, params CompletionParams) (<-chan CompletionChunk, error) {
	reqBody, err := json.Marshal(ollamaChatReq{
		Model: c.chatModel,
		Messages: []ollamaChatMessage{
			{Role: "user", Content: prompt},
		},
		Stream: true,
		Options: map[string]any{
			"temperature": params.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llmadapter: marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("llmadapter: build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llmadapter: chat request: %w", err)
	}

	out := make(chan CompletionChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 64*1024)

		var text string
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				text += chunk.Message.Content
				out <- CompletionChunk{Kind: ChunkText, Text: chunk.Message.Content}
			}
			if chunk.Done {
				out <- CompletionChunk{
					Kind:         ChunkComplete,
					Text:         text,
					FinishReason: "stop",
					Usage: Usage{
						PromptTokens:     chunk.PromptEvalCount,
						CompletionTokens: chunk.EvalCount,
						TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
					},
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- CompletionChunk{Kind: ChunkError, Err: err}
		}
	}()
	return out, nil
}
