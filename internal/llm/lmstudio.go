package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agent-council/backend/pkg/circuitbreaker"
	"github.com/agent-council/backend/pkg/logger"
	"github.com/agent-council/backend/pkg/retry"
)

// lmStudioReviewTokenCap bounds review completions against local servers,
// which stall on large budgets.
const lmStudioReviewTokenCap = 2048

// LMStudioAdapter talks to a local LM Studio server through its
// OpenAI-compatible endpoint. The model list is whatever the server has
// loaded, so ListModels queries it live instead of a static catalog.
type LMStudioAdapter struct {
	client  *openai.Client
	baseURL string
	cb      *circuitbreaker.Breaker
	retry   retry.Policy
}

func NewLMStudioAdapter(baseURL string, timeoutSec int) *LMStudioAdapter {
	baseURL = strings.TrimRight(baseURL, "/")

	var client *openai.Client
	if baseURL != "" {
		cfg := openai.DefaultConfig("lm-studio")
		cfg.BaseURL = baseURL
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
		client = openai.NewClientWithConfig(cfg)
	}

	return &LMStudioAdapter{
		client:  client,
		baseURL: baseURL,
		cb:      newProviderBreaker(ProviderLMStudio),
		retry:   providerRetryPolicy(),
	}
}

func (a *LMStudioAdapter) Provider() string {
	return ProviderLMStudio
}

func (a *LMStudioAdapter) Available() bool {
	return a.baseURL != ""
}

func (a *LMStudioAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if a.client == nil {
		return nil, nil
	}

	list, err := a.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lmstudio models: %w", err)
	}

	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, ModelInfo{
			Provider:    ProviderLMStudio,
			ID:          m.ID,
			DisplayName: m.ID,
		})
	}

	return models, nil
}

func (a *LMStudioAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) AnswerResult {
	if a.client == nil {
		return AnswerResult{Error: "LM Studio base URL not configured"}
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Question,
	})

	start := time.Now()
	resp, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return AnswerResult{LatencyMS: latency, Error: err.Error()}
	}

	logger.Debug("LM Studio answer generated",
		zap.String("model", req.Model),
		zap.Int("latency_ms", latency),
	)

	return AnswerResult{
		Text:      resp.Choices[0].Message.Content,
		LatencyMS: latency,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
}

func (a *LMStudioAdapter) GenerateReview(ctx context.Context, req ReviewRequest) ReviewResult {
	if a.client == nil {
		return ReviewResult{Error: "LM Studio base URL not configured"}
	}

	maxTokens := req.MaxTokens
	if maxTokens > lmStudioReviewTokenCap {
		maxTokens = lmStudioReviewTokenCap
	}

	start := time.Now()
	resp, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return ReviewResult{LatencyMS: latency, Error: err.Error()}
	}

	return ReviewResult{
		RawResponse: resp.Choices[0].Message.Content,
		LatencyMS:   latency,
	}
}

func (a *LMStudioAdapter) complete(ctx context.Context, chatReq openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var resp openai.ChatCompletionResponse

	err := a.cb.Do(ctx, func() error {
		return retry.Do(ctx, a.retry, func() error {
			r, err := a.client.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(r.Choices) == 0 {
				return fmt.Errorf("empty completion response")
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &resp, nil
}
