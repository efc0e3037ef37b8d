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

var openAIModels = []ModelInfo{
	{Provider: ProviderOpenAI, ID: "gpt-5.2", DisplayName: "GPT-5.2"},
	{Provider: ProviderOpenAI, ID: "gpt-5.2-pro", DisplayName: "GPT-5.2 Pro"},
	{Provider: ProviderOpenAI, ID: "gpt-5.1", DisplayName: "GPT-5.1"},
	{Provider: ProviderOpenAI, ID: "gpt-5-pro", DisplayName: "GPT-5 Pro"},
	{Provider: ProviderOpenAI, ID: "gpt-5-mini", DisplayName: "GPT-5 Mini"},
	{Provider: ProviderOpenAI, ID: "gpt-5-nano", DisplayName: "GPT-5 Nano"},
	{Provider: ProviderOpenAI, ID: "gpt-4.1", DisplayName: "GPT-4.1"},
	{Provider: ProviderOpenAI, ID: "gpt-4.1-mini", DisplayName: "GPT-4.1 Mini"},
	{Provider: ProviderOpenAI, ID: "gpt-4.1-nano", DisplayName: "GPT-4.1 Nano"},
	{Provider: ProviderOpenAI, ID: "gpt-4o", DisplayName: "GPT-4o"},
	{Provider: ProviderOpenAI, ID: "gpt-4o-mini", DisplayName: "GPT-4o Mini"},
	{Provider: ProviderOpenAI, ID: "o3", DisplayName: "o3"},
	{Provider: ProviderOpenAI, ID: "o3-mini", DisplayName: "o3 Mini"},
	{Provider: ProviderOpenAI, ID: "o1", DisplayName: "o1"},
	{Provider: ProviderOpenAI, ID: "o1-mini", DisplayName: "o1 Mini"},
}

type OpenAIAdapter struct {
	client *openai.Client
	apiKey string
	cb     *circuitbreaker.Breaker
	retry  retry.Policy
}

func NewOpenAIAdapter(apiKey, baseURL string, timeoutSec int) *OpenAIAdapter {
	var client *openai.Client
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
		client = openai.NewClientWithConfig(cfg)
	}

	return &OpenAIAdapter{
		client: client,
		apiKey: apiKey,
		cb:     newProviderBreaker(ProviderOpenAI),
		retry:  providerRetryPolicy(),
	}
}

func (a *OpenAIAdapter) Provider() string {
	return ProviderOpenAI
}

func (a *OpenAIAdapter) Available() bool {
	return a.apiKey != ""
}

func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return openAIModels, nil
}

func (a *OpenAIAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) AnswerResult {
	if a.client == nil {
		return AnswerResult{Error: "OpenAI API key not configured"}
	}

	start := time.Now()
	resp, err := a.complete(ctx, buildOpenAIRequest(req.Model, req.SystemPrompt, req.Question, req.Temperature, req.MaxTokens))
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return AnswerResult{LatencyMS: latency, Error: err.Error()}
	}

	logger.Debug("OpenAI answer generated",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return AnswerResult{
		Text:      resp.Choices[0].Message.Content,
		LatencyMS: latency,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
}

func (a *OpenAIAdapter) GenerateReview(ctx context.Context, req ReviewRequest) ReviewResult {
	if a.client == nil {
		return ReviewResult{Error: "OpenAI API key not configured"}
	}

	start := time.Now()
	resp, err := a.complete(ctx, buildOpenAIRequest(req.Model, "", req.Prompt, req.Temperature, req.MaxTokens))
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return ReviewResult{LatencyMS: latency, Error: err.Error()}
	}

	return ReviewResult{
		RawResponse: resp.Choices[0].Message.Content,
		LatencyMS:   latency,
	}
}

func (a *OpenAIAdapter) complete(ctx context.Context, chatReq openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
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

// buildOpenAIRequest maps one logical call onto the parameter set the target
// model accepts: o-series reasoning models reject temperature and system
// prompts, and gpt-4.1/gpt-5 generations take max_completion_tokens in place
// of max_tokens.
func buildOpenAIRequest(model, systemPrompt, userPrompt string, temperature float32, maxTokens int) openai.ChatCompletionRequest {
	isReasoning := strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
	usesNewAPI := strings.HasPrefix(model, "gpt-4.1") || strings.HasPrefix(model, "gpt-5")

	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" && !isReasoning {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	switch {
	case isReasoning:
		req.MaxCompletionTokens = maxTokens
	case usesNewAPI:
		req.Temperature = temperature
		req.MaxCompletionTokens = maxTokens
	default:
		req.Temperature = temperature
		req.MaxTokens = maxTokens
	}

	return req
}
