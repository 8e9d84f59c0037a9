package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/api/handlers"
	"github.com/pickgear/backend/internal/generator"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/internal/skill"
	"github.com/pickgear/backend/internal/storage/sqlite"
	"github.com/pickgear/backend/pkg/config"
	appLogger "github.com/pickgear/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting PickGear API Server")
	metrics.Init()

	store, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open SQLite store", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	runner := newRunner(cfg)
	skills := skill.NewFileStore(cfg.Skills.Dir)
	gen := generator.New(runner, skills)
	critique := generator.NewCritiqueService(gen)
	reviews := generator.NewReviewService(store, critique)
	comparison := generator.NewComparisonService(store, gen)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	pipelineHandler := handlers.NewPipelineHandler(store)
	scheduleHandler := handlers.NewScheduleHandler(store)
	contentHandler := handlers.NewContentHandler(store, reviews, comparison)

	api := app.Group("/api/v1")

	api.Post("/pipeline", pipelineHandler.CreateJob)
	api.Get("/pipeline/latest", pipelineHandler.LatestStatus)
	api.Get("/pipeline/history", pipelineHandler.History)
	api.Get("/pipeline/schedule", scheduleHandler.GetSchedule)
	api.Put("/pipeline/schedule", scheduleHandler.UpdateSchedule)

	api.Use("/pipeline/logs/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/pipeline/logs/ws", websocket.New(pipelineHandler.StreamLogs))

	api.Get("/pipeline/:jobId", pipelineHandler.JobByID)

	api.Get("/products/:slug/review", contentHandler.GetReview)
	api.Post("/products/:slug/review", contentHandler.RegenerateReview)
	api.Post("/products/compare", contentHandler.Compare)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

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
	app.Shutdown()
	appLogger.Info("Server stopped")
}

// newRunner selects the LLM backend: the OpenAI API or a local CLI
// subprocess.
func newRunner(cfg *config.Config) llm.Runner {
	timeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIRunner(cfg.LLM.APIKey, cfg.LLM.Model, timeout)
	default:
		return llm.NewCLIRunner(cfg.LLM.CLIBin, timeout)
	}
}
