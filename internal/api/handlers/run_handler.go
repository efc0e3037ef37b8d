package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/cache/redis"
	"github.com/agent-council/backend/internal/council"
	"github.com/agent-council/backend/internal/metrics"
	"github.com/agent-council/backend/pkg/logger"
)

// terminalRunTTL bounds how long a finished run stays in the cache.
const terminalRunTTL = 10 * time.Minute

type RunHandler struct {
	orchestrator *council.Orchestrator
	cache        *redis.Client
}

// NewRunHandler wires the run endpoints. cache may be nil when redis is not
// available; reads then always go to sqlite.
func NewRunHandler(orchestrator *council.Orchestrator, cache *redis.Client) *RunHandler {
	return &RunHandler{
		orchestrator: orchestrator,
		cache:        cache,
	}
}

type createRunRequest struct {
	Question     string                      `json:"question"`
	Participants []council.ParticipantConfig `json:"participants"`
	BlindReview  *bool                       `json:"blind_review"`
}

func (r *createRunRequest) blind() bool {
	if r.BlindReview == nil {
		return true
	}
	return *r.BlindReview
}

func (r *createRunRequest) validate() string {
	if r.Question == "" {
		return "Question is required"
	}
	if len(r.Participants) == 0 {
		return "At least one participant is required"
	}
	for _, p := range r.Participants {
		if p.Provider == "" || p.Model == "" {
			return "Every participant needs a provider and a model"
		}
	}
	return ""
}

func (h *RunHandler) CreateRun(c *fiber.Ctx) error {
	var req createRunRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if msg := req.validate(); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}

	detail, err := h.orchestrator.CreateRun(req.Question, req.Participants, req.blind())
	if err != nil {
		if errors.Is(err, council.ErrEmptyQuestion) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question is required",
			})
		}
		logger.Error("Failed to create run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create run",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(detail)
}

func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	runs, err := h.orchestrator.ListRuns(limit, offset)
	if err != nil {
		logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
		})
	}

	return c.JSON(fiber.Map{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	runID := c.Params("id")

	if h.cache != nil {
		cached, err := h.cache.CachedRunDetail(c.Context(), runID)
		if err != nil {
			logger.Warn("Run cache read failed", zap.Error(err))
		} else if cached != nil {
			metrics.CacheHits.WithLabelValues("run_detail").Inc()
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(cached)
		}
		metrics.CacheMisses.WithLabelValues("run_detail").Inc()
	}

	detail, err := h.orchestrator.GetRunDetail(runID)
	if err != nil {
		return h.runError(c, err, "Failed to load run")
	}

	if h.cache != nil && detail.Run.Status.Terminal() {
		if err := h.cache.CacheRunDetail(c.Context(), detail, terminalRunTTL); err != nil {
			logger.Warn("Run cache write failed", zap.Error(err))
		}
	}

	return c.JSON(detail)
}

func (h *RunHandler) DeleteRun(c *fiber.Ctx) error {
	runID := c.Params("id")

	if err := h.orchestrator.DeleteRun(runID); err != nil {
		return h.runError(c, err, "Failed to delete run")
	}

	if h.cache != nil {
		if err := h.cache.DropRunDetail(c.Context(), runID); err != nil {
			logger.Warn("Run cache invalidation failed", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"message": "Run deleted",
		"run_id":  runID,
	})
}

func (h *RunHandler) GenerateAnswers(c *fiber.Ctx) error {
	runID := c.Params("id")

	detail, err := h.orchestrator.GenerateAnswers(c.Context(), runID)
	if err != nil {
		return h.runError(c, err, "Failed to generate answers")
	}

	return c.JSON(detail)
}

type evaluateRequest struct {
	Reviewers []council.ParticipantConfig `json:"reviewers"`
}

func (h *RunHandler) Evaluate(c *fiber.Ctx) error {
	runID := c.Params("id")

	var req evaluateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		for _, rv := range req.Reviewers {
			if rv.Provider == "" || rv.Model == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Every reviewer needs a provider and a model",
				})
			}
		}
	}

	detail, err := h.orchestrator.RunEvaluation(c.Context(), runID, req.Reviewers)
	if err != nil {
		return h.runError(c, err, "Failed to evaluate run")
	}

	return c.JSON(detail)
}

func (h *RunHandler) RunFull(c *fiber.Ctx) error {
	var req createRunRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if msg := req.validate(); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}

	detail, err := h.orchestrator.RunFullPipeline(c.Context(), req.Question, req.Participants, req.blind())
	if err != nil {
		return h.runError(c, err, "Failed to run pipeline")
	}

	return c.JSON(detail)
}

// runError maps orchestrator sentinels onto HTTP statuses.
func (h *RunHandler) runError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, council.ErrRunNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	case errors.Is(err, council.ErrInvalidTransition), errors.Is(err, council.ErrInsufficientAnswers):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, council.ErrEmptyQuestion):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		logger.Error(fallback, zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
		})
	}
}
