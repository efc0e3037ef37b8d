package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// lmStudioTestServer emulates the OpenAI-compatible surface LM Studio
// exposes, recording the completion requests it receives.
func lmStudioTestServer(t *testing.T) (*httptest.Server, func() *openai.ChatCompletionRequest) {
	t.Helper()

	var mu sync.Mutex
	var last *openai.ChatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "list",
				"data": []map[string]interface{}{
					{"id": "qwen2.5-7b-instruct", "object": "model", "owned_by": "organization"},
					{"id": "llama-3.1-8b", "object": "model", "owned_by": "organization"},
				},
			})
		case "/chat/completions":
			var req openai.ChatCompletionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			mu.Lock()
			last = &req
			mu.Unlock()

			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"model":   req.Model,
				"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": "local answer"}, "finish_reason": "stop"}},
				"usage":   map[string]int{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() *openai.ChatCompletionRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestLMStudioListModelsQueriesServer(t *testing.T) {
	srv, _ := lmStudioTestServer(t)
	adapter := NewLMStudioAdapter(srv.URL, 5)

	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %d, want 2", len(models))
	}
	if models[0].ID != "qwen2.5-7b-instruct" || models[0].Provider != ProviderLMStudio {
		t.Errorf("models[0] = %+v", models[0])
	}
}

func TestLMStudioGenerateAnswer(t *testing.T) {
	srv, lastRequest := lmStudioTestServer(t)
	adapter := NewLMStudioAdapter(srv.URL, 5)

	result := adapter.GenerateAnswer(context.Background(), AnswerRequest{
		Model:        "qwen2.5-7b-instruct",
		Question:     "q",
		SystemPrompt: "sys",
		Temperature:  0.7,
		MaxTokens:    2048,
	})
	if result.Failed() {
		t.Fatalf("answer failed: %s", result.Error)
	}
	if result.Text != "local answer" || result.TokensIn != 12 || result.TokensOut != 5 {
		t.Errorf("result = %+v", result)
	}

	sent := lastRequest()
	if sent == nil {
		t.Fatal("no request reached the server")
	}
	if len(sent.Messages) != 2 || sent.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("messages = %+v, want system then user", sent.Messages)
	}
	if sent.MaxTokens != 2048 {
		t.Errorf("max tokens = %d", sent.MaxTokens)
	}
}

func TestLMStudioReviewTokensCapped(t *testing.T) {
	srv, lastRequest := lmStudioTestServer(t)
	adapter := NewLMStudioAdapter(srv.URL, 5)

	result := adapter.GenerateReview(context.Background(), ReviewRequest{
		Model:     "qwen2.5-7b-instruct",
		Prompt:    "rank",
		MaxTokens: 4096,
	})
	if result.Failed() {
		t.Fatalf("review failed: %s", result.Error)
	}

	sent := lastRequest()
	if sent == nil {
		t.Fatal("no request reached the server")
	}
	if sent.MaxTokens != lmStudioReviewTokenCap {
		t.Errorf("max tokens = %d, want capped at %d", sent.MaxTokens, lmStudioReviewTokenCap)
	}
}

func TestLMStudioAdapterWithoutBaseURL(t *testing.T) {
	adapter := NewLMStudioAdapter("", 5)

	if adapter.Available() {
		t.Error("adapter without base URL reports available")
	}
	result := adapter.GenerateAnswer(context.Background(), AnswerRequest{Model: "m"})
	if !result.Failed() {
		t.Errorf("result = %+v, want configuration error", result)
	}
	models, err := adapter.ListModels(context.Background())
	if err != nil || models != nil {
		t.Errorf("ListModels = %v, %v, want empty", models, err)
	}
}
