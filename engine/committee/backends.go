package committee

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"

	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/pkg/llmadapter"
	"github.com/mnemosdb/mnemos/pkg/resilience"
)

// scoringPrompt is the shared instruction every committee member
// receives; all three backends parse the same JSON shape out of the
// model's reply.
const scoringPrompt = `Score the following text on five dimensions, each a
number in [0,1], plus a boolean and a short justification. Respond with
JSON only, no surrounding prose, matching exactly this shape:
{"score":0.0,"confidence":0.0,"objective_alignment":0.0,"implementation_quality":0.0,"risk_assessment":0.0,"makes_progress":true,"reasoning":"..."}

Text:
%s`

type rawScore struct {
	Score                 float32 `json:"score"`
	Confidence            float32 `json:"confidence"`
	ObjectiveAlignment    float32 `json:"objective_alignment"`
	ImplementationQuality float32 `json:"implementation_quality"`
	RiskAssessment        float32 `json:"risk_assessment"`
	MakesProgress         bool    `json:"makes_progress"`
	Reasoning             string  `json:"reasoning"`
}

// parseEvaluation extracts a CommitteeEvaluation from a model's raw
// text reply, tolerating a fenced ```json block around the payload.
func parseEvaluation(raw string, elapsed time.Duration) (domain.CommitteeEvaluation, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed rawScore
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return domain.CommitteeEvaluation{}, fmt.Errorf("committee: parsing model response: %w", err)
	}

	return domain.CommitteeEvaluation{
		Score:                 parsed.Score,
		Reasoning:             parsed.Reasoning,
		Confidence:            parsed.Confidence,
		ObjectiveAlignment:    parsed.ObjectiveAlignment,
		ImplementationQuality: parsed.ImplementationQuality,
		RiskAssessment:        parsed.RiskAssessment,
		MakesProgress:         parsed.MakesProgress,
		EvaluationTime:        elapsed,
	}, nil
}

// MultiBackend dispatches each ModelType's evaluation call to the
// client matching its Provider field, wrapping every outbound call in
// a per-provider circuit breaker.
type MultiBackend struct {
	anthropicClient anthropic.Client
	openaiClient    openai.Client
	ollama          llmadapter.Completer

	breakers map[string]*resilience.Breaker
}

// NewMultiBackend wires up the three well-known providers. Any of the
// clients may be zero-valued if that provider is never referenced by
// the configured committee.
func NewMultiBackend(anthropicAPIKey, openaiAPIKey string, ollama llmadapter.Completer) *MultiBackend {
	return &MultiBackend{
		anthropicClient: anthropic.NewClient(option.WithAPIKey(anthropicAPIKey)),
		openaiClient:    openai.NewClient(openaioption.WithAPIKey(openaiAPIKey)),
		ollama:          ollama,
		breakers: map[string]*resilience.Breaker{
			"anthropic": resilience.NewBreaker(resilience.DefaultBreakerOpts),
			"openai":    resilience.NewBreaker(resilience.DefaultBreakerOpts),
			"ollama":    resilience.NewBreaker(resilience.DefaultBreakerOpts),
		},
	}
}

var _ Backend = (*MultiBackend)(nil)

// Evaluate implements Backend, routing on model.Provider.
func (b *MultiBackend) Evaluate(ctx context.Context, model ModelType, text string) (domain.CommitteeEvaluation, error) {
	breaker := b.breakers[model.Provider]
	if breaker == nil {
		return domain.CommitteeEvaluation{}, fmt.Errorf("committee: unknown model provider %q", model.Provider)
	}

	var out domain.CommitteeEvaluation
	err := breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		switch model.Provider {
		case "anthropic":
			out, err = b.callAnthropic(ctx, model, text)
		case "openai":
			out, err = b.callOpenAI(ctx, model, text)
		case "ollama":
			out, err = b.callOllama(ctx, model, text)
		default:
			err = fmt.Errorf("committee: unknown model provider %q", model.Provider)
		}
		return err
	})
	return out, err
}

func (b *MultiBackend) callAnthropic(ctx context.Context, model ModelType, text string) (domain.CommitteeEvaluation, error) {
	start := time.Now()
	msg, err := b.anthropicClient.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model.RequestID),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(scoringPrompt, text))),
		},
	})
	if err != nil {
		return domain.CommitteeEvaluation{}, err
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return parseEvaluation(reply.String(), time.Since(start))
}

func (b *MultiBackend) callOpenAI(ctx context.Context, model ModelType, text string) (domain.CommitteeEvaluation, error) {
	start := time.Now()
	resp, err := b.openaiClient.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model.RequestID,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(scoringPrompt, text)),
		},
	})
	if err != nil {
		return domain.CommitteeEvaluation{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.CommitteeEvaluation{}, fmt.Errorf("committee: empty choices from openai model %s", model.RequestID)
	}
	return parseEvaluation(resp.Choices[0].Message.Content, time.Since(start))
}

func (b *MultiBackend) callOllama(ctx context.Context, model ModelType, text string) (domain.CommitteeEvaluation, error) {
	if b.ollama == nil {
		return domain.CommitteeEvaluation{}, fmt.Errorf("committee: no ollama backend configured")
	}
	start := time.Now()
	chunks, err := b.ollama.Complete(ctx, fmt.Sprintf(scoringPrompt, text), llmadapter.CompletionParams{
		Temperature: model.Temperature(),
	})
	if err != nil {
		return domain.CommitteeEvaluation{}, err
	}

	var reply strings.Builder
	for chunk := range chunks {
		switch chunk.Kind {
		case llmadapter.ChunkText:
			reply.WriteString(chunk.Text)
		case llmadapter.ChunkError:
			return domain.CommitteeEvaluation{}, chunk.Err
		case llmadapter.ChunkComplete:
			return parseEvaluation(reply.String(), time.Since(start))
		}
	}
	return parseEvaluation(reply.String(), time.Since(start))
}
