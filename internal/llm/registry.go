package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/agent-council/backend/pkg/logger"
)

type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Registry maps provider tags to adapters. Iteration order is the
// registration order so listings stay stable between calls.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		if _, ok := r.adapters[a.Provider()]; ok {
			continue
		}
		r.adapters[a.Provider()] = a
		r.order = append(r.order, a.Provider())
	}
	return r
}

func (r *Registry) Get(provider string) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

func (r *Registry) Providers() []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(r.order))
	for _, name := range r.order {
		statuses = append(statuses, ProviderStatus{
			Name:      name,
			Available: r.adapters[name].Available(),
		})
	}
	return statuses
}

// ListAllModels aggregates the catalogs of every available provider. A
// provider whose listing fails is skipped, not fatal.
func (r *Registry) ListAllModels(ctx context.Context) []ModelInfo {
	var models []ModelInfo
	for _, name := range r.order {
		adapter := r.adapters[name]
		if !adapter.Available() {
			continue
		}
		list, err := adapter.ListModels(ctx)
		if err != nil {
			logger.Warn("Failed to list models",
				zap.String("provider", name),
				zap.Error(err),
			)
			continue
		}
		models = append(models, list...)
	}
	return models
}
