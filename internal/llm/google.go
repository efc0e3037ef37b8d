package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/agent-council/backend/pkg/circuitbreaker"
	"github.com/agent-council/backend/pkg/retry"
)

var googleModels = []ModelInfo{
	{Provider: ProviderGoogle, ID: "gemini-2.0-flash-exp", DisplayName: "Gemini 2.0 Flash"},
	{Provider: ProviderGoogle, ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro"},
	{Provider: ProviderGoogle, ID: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash"},
}

type GoogleAdapter struct {
	client *genai.Client
	apiKey string
	cb     *circuitbreaker.Breaker
	retry  retry.Policy
}

func NewGoogleAdapter(apiKey string) (*GoogleAdapter, error) {
	var client *genai.Client
	if apiKey != "" {
		var err error
		client, err = genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
	}

	return &GoogleAdapter{
		client: client,
		apiKey: apiKey,
		cb:     newProviderBreaker(ProviderGoogle),
		retry:  providerRetryPolicy(),
	}, nil
}

func (a *GoogleAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *GoogleAdapter) Provider() string {
	return ProviderGoogle
}

func (a *GoogleAdapter) Available() bool {
	return a.apiKey != ""
}

func (a *GoogleAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return googleModels, nil
}

func (a *GoogleAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) AnswerResult {
	if a.client == nil {
		return AnswerResult{Error: "Google API key not configured"}
	}

	start := time.Now()
	resp, err := a.generate(ctx, req.Model, req.SystemPrompt, req.Question, req.Temperature, req.MaxTokens)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return AnswerResult{LatencyMS: latency, Error: err.Error()}
	}

	result := AnswerResult{
		Text:      googleResponseText(resp),
		LatencyMS: latency,
	}
	if resp.UsageMetadata != nil {
		result.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		result.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return result
}

func (a *GoogleAdapter) GenerateReview(ctx context.Context, req ReviewRequest) ReviewResult {
	if a.client == nil {
		return ReviewResult{Error: "Google API key not configured"}
	}

	start := time.Now()
	resp, err := a.generate(ctx, req.Model, "", req.Prompt, req.Temperature, req.MaxTokens)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return ReviewResult{LatencyMS: latency, Error: err.Error()}
	}

	return ReviewResult{
		RawResponse: googleResponseText(resp),
		LatencyMS:   latency,
	}
}

func (a *GoogleAdapter) generate(ctx context.Context, modelName, systemPrompt, prompt string, temperature float32, maxTokens int) (*genai.GenerateContentResponse, error) {
	model := a.client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: genai.Ptr(int32(maxTokens)),
	}
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	var resp *genai.GenerateContentResponse

	err := a.cb.Do(ctx, func() error {
		return retry.Do(ctx, a.retry, func() error {
			r, err := model.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return fmt.Errorf("google API error: %w", err)
			}
			if len(r.Candidates) == 0 || r.Candidates[0].Content == nil || len(r.Candidates[0].Content.Parts) == 0 {
				return fmt.Errorf("empty response from google")
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func googleResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}
