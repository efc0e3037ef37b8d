package llm

import (
	"context"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestBuildOpenAIRequestLegacyModels(t *testing.T) {
	req := buildOpenAIRequest("gpt-4o", "be brief", "hello", 0.7, 512)

	if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("messages = %+v, want system then user", req.Messages)
	}
	if req.MaxTokens != 512 || req.MaxCompletionTokens != 0 {
		t.Errorf("token fields = %d/%d, want legacy max_tokens", req.MaxTokens, req.MaxCompletionTokens)
	}
	if req.Temperature != 0.7 {
		t.Errorf("temperature = %v", req.Temperature)
	}
}

func TestBuildOpenAIRequestNewGenerations(t *testing.T) {
	for _, model := range []string{"gpt-4.1", "gpt-4.1-mini", "gpt-5", "gpt-5-nano"} {
		req := buildOpenAIRequest(model, "", "hello", 0.7, 512)
		if req.MaxCompletionTokens != 512 || req.MaxTokens != 0 {
			t.Errorf("%s token fields = %d/%d, want max_completion_tokens", model, req.MaxTokens, req.MaxCompletionTokens)
		}
		if req.Temperature != 0.7 {
			t.Errorf("%s temperature = %v, want kept", model, req.Temperature)
		}
	}
}

func TestBuildOpenAIRequestReasoningModels(t *testing.T) {
	for _, model := range []string{"o1", "o1-mini", "o3", "o3-mini"} {
		req := buildOpenAIRequest(model, "be brief", "hello", 0.7, 512)

		for _, m := range req.Messages {
			if m.Role == openai.ChatMessageRoleSystem {
				t.Errorf("%s kept a system message", model)
			}
		}
		if req.Temperature != 0 {
			t.Errorf("%s temperature = %v, want omitted", model, req.Temperature)
		}
		if req.MaxCompletionTokens != 512 || req.MaxTokens != 0 {
			t.Errorf("%s token fields = %d/%d, want max_completion_tokens", model, req.MaxTokens, req.MaxCompletionTokens)
		}
	}
}

func TestOpenAIAdapterWithoutKey(t *testing.T) {
	adapter := NewOpenAIAdapter("", "", 5)

	if adapter.Available() {
		t.Error("adapter without key reports available")
	}

	answer := adapter.GenerateAnswer(context.Background(), AnswerRequest{Model: "gpt-4o", Question: "q"})
	if !answer.Failed() || !strings.Contains(answer.Error, "not configured") {
		t.Errorf("answer = %+v, want configuration error", answer)
	}

	review := adapter.GenerateReview(context.Background(), ReviewRequest{Model: "gpt-4o", Prompt: "p"})
	if !review.Failed() || !strings.Contains(review.Error, "not configured") {
		t.Errorf("review = %+v, want configuration error", review)
	}
}

func TestOpenAIStaticCatalog(t *testing.T) {
	adapter := NewOpenAIAdapter("key", "", 5)

	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) == 0 {
		t.Fatal("catalog empty")
	}
	for _, m := range models {
		if m.Provider != ProviderOpenAI {
			t.Errorf("model %s provider = %s", m.ID, m.Provider)
		}
	}
}
