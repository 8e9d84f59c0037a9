package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/cache/redis"
	"github.com/pickgear/backend/internal/crawler"
	"github.com/pickgear/backend/internal/extractor"
	"github.com/pickgear/backend/internal/generator"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/internal/pipeline"
	"github.com/pickgear/backend/internal/skill"
	"github.com/pickgear/backend/internal/storage/sqlite"
	"github.com/pickgear/backend/internal/worker"
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

	appLogger.Info("Starting PickGear Pipeline Worker")
	metrics.Init()

	store, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open SQLite store", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The hash cache is optional: without redis the pipeline falls back to
	// crawl history in SQLite.
	var cache *redis.Client
	if cfg.Redis.Host != "" {
		cache, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without hash cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	chrome := crawler.NewChromeCrawler(
		time.Duration(cfg.Crawler.NavTimeoutSec)*time.Second,
		time.Duration(cfg.Crawler.SettleDelayMs)*time.Millisecond,
	)
	defer chrome.Close()

	runner := newRunner(cfg)
	skills := skill.NewFileStore(cfg.Skills.Dir)
	extract := extractor.New(runner, skills)
	gen := generator.New(runner, skills)
	critique := generator.NewCritiqueService(gen)
	searcher := crawler.NewReviewSearcher(cfg.Crawler.ReviewSearchResults)
	images := pipeline.NewImages(cfg.Image.OutputDir, cfg.Image.PublicPrefix)

	orchestrator := pipeline.NewOrchestrator(
		store, cache, chrome, searcher, runner, skills, extract, critique, images,
		pipeline.OrchestratorConfig{
			MaxLinksPerListing: cfg.Crawler.MaxLinksPerListing,
			HashTTL:            time.Duration(cfg.Redis.HashTTLHours) * time.Hour,
		},
	)
	discovery := pipeline.NewDiscovery(runner, skills, chrome)

	run := func(ctx context.Context, category string, makers []string, logf func(format string, args ...any)) error {
		listings, err := discovery.ListingURLs(ctx, category, makers, logf)
		if err != nil {
			return err
		}
		if len(listings) == 0 {
			return fmt.Errorf("discovery produced no listing pages for category %q", category)
		}
		_, err = orchestrator.Run(ctx, listings, logf)
		return err
	}

	runner2 := worker.NewRunner(store, run)
	scheduler := worker.NewScheduler(store)
	w := worker.New(store, runner2, scheduler,
		time.Duration(cfg.Worker.PollIntervalSec)*time.Second,
		time.Duration(cfg.Worker.ScheduleRefreshSec)*time.Second,
	)

	// Health and metrics for the worker process.
	app := fiber.New()
	app.Use(recover.New())
	app.Get("/metrics", metrics.MetricsHandler())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
		if err := app.Listen(addr); err != nil {
			appLogger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		appLogger.Info("Worker shutting down gracefully...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		appLogger.Error("Worker stopped with error", zap.Error(err))
	}

	app.Shutdown()
	appLogger.Info("Worker stopped")
}

func newRunner(cfg *config.Config) llm.Runner {
	timeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIRunner(cfg.LLM.APIKey, cfg.LLM.Model, timeout)
	default:
		return llm.NewCLIRunner(cfg.LLM.CLIBin, timeout)
	}
}
