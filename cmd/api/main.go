package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/api/handlers"
	"github.com/agent-council/backend/internal/cache/redis"
	"github.com/agent-council/backend/internal/council"
	"github.com/agent-council/backend/internal/llm"
	"github.com/agent-council/backend/internal/metrics"
	"github.com/agent-council/backend/internal/middleware/ratelimit"
	"github.com/agent-council/backend/internal/middleware/security"
	"github.com/agent-council/backend/internal/middleware/validation"
	"github.com/agent-council/backend/internal/storage/sqlite"
	"github.com/agent-council/backend/pkg/config"
	appLogger "github.com/agent-council/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Agent Council API Server")

	metrics.Init()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	cacheClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	registry, closeAdapters, err := buildRegistry(cfg)
	if err != nil {
		appLogger.Fatal("Failed to build provider registry", zap.Error(err))
	}
	defer closeAdapters()

	hub := council.NewEventHub()
	orchestrator := council.NewOrchestrator(store, registry, hub, council.Config{
		MaxConcurrency:    cfg.Council.MaxConcurrency,
		AnswerTimeout:     time.Duration(cfg.Council.AnswerTimeoutSec) * time.Second,
		ReviewTimeout:     time.Duration(cfg.Council.ReviewTimeoutSec) * time.Second,
		ReviewTemperature: cfg.Council.ReviewTemperature,
		ReviewMaxTokens:   cfg.Council.ReviewMaxTokens,
		SelfExclusion:     cfg.Council.SelfExclusion,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.New(security.Config{}))

	rateLimiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer rateLimiter.Stop()

	registerRoutes(app, cfg, orchestrator, registry, cacheClient, hub, rateLimiter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Shutdown did not finish cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

// buildRegistry constructs one adapter per provider. Adapters for providers
// without credentials still register; they report unavailable and fail calls
// with a clear message instead of being absent.
func buildRegistry(cfg *config.Config) (*llm.Registry, func(), error) {
	openaiAdapter := llm.NewOpenAIAdapter(
		cfg.Providers.OpenAI.APIKey,
		cfg.Providers.OpenAI.BaseURL,
		cfg.Providers.OpenAI.TimeoutSec,
	)
	anthropicAdapter := llm.NewAnthropicAdapter(
		cfg.Providers.Anthropic.APIKey,
		cfg.Providers.Anthropic.BaseURL,
		cfg.Providers.Anthropic.Version,
		cfg.Providers.Anthropic.TimeoutSec,
	)
	googleAdapter, err := llm.NewGoogleAdapter(cfg.Providers.Google.APIKey)
	if err != nil {
		return nil, nil, err
	}
	lmstudioAdapter := llm.NewLMStudioAdapter(
		cfg.Providers.LMStudio.BaseURL,
		cfg.Providers.LMStudio.TimeoutSec,
	)

	registry := llm.NewRegistry(openaiAdapter, anthropicAdapter, googleAdapter, lmstudioAdapter)
	cleanup := func() {
		if err := googleAdapter.Close(); err != nil {
			appLogger.Warn("Failed to close Google adapter", zap.Error(err))
		}
	}

	return registry, cleanup, nil
}

func registerRoutes(
	app *fiber.App,
	cfg *config.Config,
	orchestrator *council.Orchestrator,
	registry *llm.Registry,
	cacheClient *redis.Client,
	hub *council.EventHub,
	rateLimiter *ratelimit.Limiter,
) {
	runHandler := handlers.NewRunHandler(orchestrator, cacheClient)
	modelHandler := handlers.NewModelHandler(registry, cacheClient,
		time.Duration(cfg.Council.ModelCacheTTLSec)*time.Second)
	wsHandler := handlers.NewWebSocketHandler(orchestrator, hub)

	api := app.Group("/api/v1",
		rateLimiter.Middleware(),
		validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}),
	)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	api.Get("/providers", modelHandler.ListProviders)
	api.Get("/models", modelHandler.ListModels)

	api.Post("/runs", runHandler.CreateRun)
	api.Post("/runs/full", runHandler.RunFull)
	api.Get("/runs", runHandler.ListRuns)
	api.Get("/runs/:id", runHandler.GetRun)
	api.Delete("/runs/:id", runHandler.DeleteRun)
	api.Post("/runs/:id/answers", runHandler.GenerateAnswers)
	api.Post("/runs/:id/evaluate", runHandler.Evaluate)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/runs/:id", websocket.New(wsHandler.HandleConnection))
}
