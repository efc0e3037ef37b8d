package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeAdapter struct {
	provider  string
	available bool
	models    []ModelInfo
	listErr   error
}

func (f *fakeAdapter) Provider() string { return f.provider }
func (f *fakeAdapter) Available() bool  { return f.available }

func (f *fakeAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return f.models, f.listErr
}

func (f *fakeAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) AnswerResult {
	return AnswerResult{}
}

func (f *fakeAdapter) GenerateReview(ctx context.Context, req ReviewRequest) ReviewResult {
	return ReviewResult{}
}

func TestRegistryGet(t *testing.T) {
	a := &fakeAdapter{provider: "openai", available: true}
	registry := NewRegistry(a)

	got, ok := registry.Get("openai")
	if !ok || got != a {
		t.Fatalf("Get(openai) = %v, %v", got, ok)
	}
	if _, ok := registry.Get("ghost"); ok {
		t.Fatal("Get(ghost) found an adapter")
	}
}

func TestRegistryKeepsFirstAdapterPerProvider(t *testing.T) {
	first := &fakeAdapter{provider: "openai", available: true}
	second := &fakeAdapter{provider: "openai", available: false}
	registry := NewRegistry(first, second)

	got, _ := registry.Get("openai")
	if got != first {
		t.Fatal("duplicate registration replaced the first adapter")
	}
	if n := len(registry.Providers()); n != 1 {
		t.Fatalf("providers = %d, want 1", n)
	}
}

func TestRegistryProvidersKeepRegistrationOrder(t *testing.T) {
	registry := NewRegistry(
		&fakeAdapter{provider: "openai", available: true},
		&fakeAdapter{provider: "anthropic", available: false},
		&fakeAdapter{provider: "lmstudio", available: true},
	)

	statuses := registry.Providers()
	wantNames := []string{"openai", "anthropic", "lmstudio"}
	wantAvail := []bool{true, false, true}
	if len(statuses) != len(wantNames) {
		t.Fatalf("statuses = %d, want %d", len(statuses), len(wantNames))
	}
	for i, s := range statuses {
		if s.Name != wantNames[i] || s.Available != wantAvail[i] {
			t.Errorf("status %d = %+v, want %s/%v", i, s, wantNames[i], wantAvail[i])
		}
	}
}

func TestListAllModelsSkipsUnavailableAndFailing(t *testing.T) {
	registry := NewRegistry(
		&fakeAdapter{provider: "openai", available: true, models: []ModelInfo{
			{Provider: "openai", ID: "gpt-4o", DisplayName: "GPT-4o"},
		}},
		&fakeAdapter{provider: "anthropic", available: false, models: []ModelInfo{
			{Provider: "anthropic", ID: "unreachable"},
		}},
		&fakeAdapter{provider: "lmstudio", available: true, listErr: errors.New("server gone")},
		&fakeAdapter{provider: "google", available: true, models: []ModelInfo{
			{Provider: "google", ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro"},
		}},
	)

	models := registry.ListAllModels(context.Background())
	if len(models) != 2 {
		t.Fatalf("models = %d, want 2", len(models))
	}
	if models[0].ID != "gpt-4o" || models[1].ID != "gemini-1.5-pro" {
		t.Errorf("models = %+v", models)
	}
}
