package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxQuestionLength   int
	MaxParticipants     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware guards the run creation endpoints before the handlers parse the
// body. Question content is not filtered beyond length; what a question says
// is the reviewers' problem, not the API's.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 8000
	}
	if cfg.MaxParticipants == 0 {
		cfg.MaxParticipants = 50
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()
		isCreate := c.Method() == "POST" &&
			(path == "/api/v1/runs" || path == "/api/v1/runs/full")
		if !isCreate {
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		question, ok := req["question"].(string)
		if !ok || strings.TrimSpace(question) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question is required and must be a string",
			})
		}
		if len(question) > cfg.MaxQuestionLength {
			cfg.Logger.Warn("Question exceeds maximum length",
				zap.String("ip", c.IP()),
				zap.Int("length", len(question)),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question exceeds maximum length",
			})
		}

		participants, ok := req["participants"].([]interface{})
		if !ok || len(participants) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "At least one participant is required",
			})
		}
		if len(participants) > cfg.MaxParticipants {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Too many participants",
			})
		}
		for _, raw := range participants {
			p, ok := raw.(map[string]interface{})
			if !ok {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Participants must be objects",
				})
			}
			provider, _ := p["provider"].(string)
			model, _ := p["model"].(string)
			if provider == "" || model == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Every participant needs a provider and a model",
				})
			}
		}

		return c.Next()
	}
}
