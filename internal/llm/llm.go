// Package llm holds the provider adapters. Every adapter exposes the same
// capability surface; callers never branch on provider identity. Call
// failures are carried as data on the result so one dead provider cannot
// abort a whole round.
package llm

import (
	"context"
	"time"

	"github.com/agent-council/backend/pkg/circuitbreaker"
	"github.com/agent-council/backend/pkg/logger"
	"github.com/agent-council/backend/pkg/retry"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderLMStudio  = "lmstudio"
)

type ModelInfo struct {
	Provider    string `json:"provider"`
	ID          string `json:"model_id"`
	DisplayName string `json:"display_name"`
}

type AnswerRequest struct {
	Model        string
	Question     string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// AnswerResult carries one completion attempt. A non-empty Error means the
// call failed; LatencyMS is recorded either way. Token counts are zero when
// the provider reported no usage.
type AnswerResult struct {
	Text      string
	LatencyMS int
	TokensIn  int
	TokensOut int
	Error     string
}

func (r AnswerResult) Failed() bool {
	return r.Error != ""
}

type ReviewRequest struct {
	Model       string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// ReviewResult carries the raw review text. Parsing happens in the council
// core, not here, so every provider's output goes through the same parser.
type ReviewResult struct {
	RawResponse string
	LatencyMS   int
	Error       string
}

func (r ReviewResult) Failed() bool {
	return r.Error != ""
}

type Adapter interface {
	Provider() string
	Available() bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	GenerateAnswer(ctx context.Context, req AnswerRequest) AnswerResult
	GenerateReview(ctx context.Context, req ReviewRequest) ReviewResult
}

func newProviderBreaker(provider string) *circuitbreaker.Breaker {
	return circuitbreaker.New(provider, circuitbreaker.Options{
		TripAfter:    5,
		Cooldown:     30 * time.Second,
		ProbeQuota:   2,
		RestoreAfter: 2,
		Logger:       logger.GetLogger(),
	})
}

func providerRetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Growth:    2,
		Jitter:    0.1,
		Logger:    logger.GetLogger(),
	}
}
