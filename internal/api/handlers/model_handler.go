package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/cache/redis"
	"github.com/agent-council/backend/internal/llm"
	"github.com/agent-council/backend/internal/metrics"
	"github.com/agent-council/backend/pkg/logger"
)

type ModelHandler struct {
	registry *llm.Registry
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewModelHandler wires the provider and model catalog endpoints. cache may
// be nil; the catalog is then assembled on every request. A short TTL keeps
// the LM Studio listing fresh since its loaded models change at runtime.
func NewModelHandler(registry *llm.Registry, cache *redis.Client, cacheTTL time.Duration) *ModelHandler {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &ModelHandler{
		registry: registry,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (h *ModelHandler) ListProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"providers": h.registry.Providers(),
	})
}

func (h *ModelHandler) ListModels(c *fiber.Ctx) error {
	if h.cache != nil {
		cached, err := h.cache.CachedModelCatalog(c.Context())
		if err != nil {
			logger.Warn("Model catalog cache read failed", zap.Error(err))
		} else if cached != nil {
			metrics.CacheHits.WithLabelValues("models").Inc()
			return c.JSON(fiber.Map{
				"models": cached,
			})
		}
		metrics.CacheMisses.WithLabelValues("models").Inc()
	}

	models := h.registry.ListAllModels(c.Context())

	if h.cache != nil {
		if err := h.cache.CacheModelCatalog(c.Context(), models, h.cacheTTL); err != nil {
			logger.Warn("Model catalog cache write failed", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"models": models,
	})
}
