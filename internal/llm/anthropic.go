package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agent-council/backend/pkg/circuitbreaker"
	"github.com/agent-council/backend/pkg/retry"
)

var anthropicModels = []ModelInfo{
	{Provider: ProviderAnthropic, ID: "claude-sonnet-4-5-20250929", DisplayName: "Claude Sonnet 4.5"},
	{Provider: ProviderAnthropic, ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4"},
	{Provider: ProviderAnthropic, ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4"},
	{Provider: ProviderAnthropic, ID: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet"},
	{Provider: ProviderAnthropic, ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku"},
}

// AnthropicAdapter speaks the Messages API directly over net/http.
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
	cb         *circuitbreaker.Breaker
	retry      retry.Policy
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func NewAnthropicAdapter(apiKey, baseURL, version string, timeoutSec int) *AnthropicAdapter {
	return &AnthropicAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		cb:         newProviderBreaker(ProviderAnthropic),
		retry:      providerRetryPolicy(),
	}
}

func (a *AnthropicAdapter) Provider() string {
	return ProviderAnthropic
}

func (a *AnthropicAdapter) Available() bool {
	return a.apiKey != ""
}

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return anthropicModels, nil
}

func (a *AnthropicAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) AnswerResult {
	if a.apiKey == "" {
		return AnswerResult{Error: "Anthropic API key not configured"}
	}

	start := time.Now()
	resp, err := a.createMessage(ctx, anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Question}},
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return AnswerResult{LatencyMS: latency, Error: err.Error()}
	}

	return AnswerResult{
		Text:      resp.Content[0].Text,
		LatencyMS: latency,
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
	}
}

func (a *AnthropicAdapter) GenerateReview(ctx context.Context, req ReviewRequest) ReviewResult {
	if a.apiKey == "" {
		return ReviewResult{Error: "Anthropic API key not configured"}
	}

	start := time.Now()
	resp, err := a.createMessage(ctx, anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return ReviewResult{LatencyMS: latency, Error: err.Error()}
	}

	return ReviewResult{
		RawResponse: resp.Content[0].Text,
		LatencyMS:   latency,
	}
}

func (a *AnthropicAdapter) createMessage(ctx context.Context, reqBody anthropicRequest) (*anthropicResponse, error) {
	var result anthropicResponse

	err := a.cb.Do(ctx, func() error {
		return retry.Do(ctx, a.retry, func() error {
			payload, err := json.Marshal(reqBody)
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-api-key", a.apiKey)
			req.Header.Set("anthropic-version", a.version)

			resp, err := a.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("anthropic API error: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(body))
			}

			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if len(result.Content) == 0 {
				return fmt.Errorf("empty response from anthropic")
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}
