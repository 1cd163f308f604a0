// reviewd server — provides the HTTP API, manages queue workers, and drives
// contract review runs through the pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lexroom/reviewd/pkg/api"
	"github.com/lexroom/reviewd/pkg/cache"
	"github.com/lexroom/reviewd/pkg/cleanup"
	"github.com/lexroom/reviewd/pkg/config"
	"github.com/lexroom/reviewd/pkg/database"
	"github.com/lexroom/reviewd/pkg/embeddings"
	"github.com/lexroom/reviewd/pkg/llm"
	"github.com/lexroom/reviewd/pkg/pipeline"
	"github.com/lexroom/reviewd/pkg/queue"
	"github.com/lexroom/reviewd/pkg/rules"
	"github.com/lexroom/reviewd/pkg/services"
	"github.com/lexroom/reviewd/pkg/store"
	"github.com/lexroom/reviewd/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting reviewd", "version", version.Full(), "http_port", httpPort)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.Pool())

	// 3. One-time startup orphan recovery
	if err := queue.RecoverStartupOrphans(ctx, st); err != nil {
		slog.Error("Failed to recover startup orphans", "error", err)
		// Non-fatal — continue
	}

	// 4. Result cache
	var cacheStore cache.Store
	if cfg.Cache.RedisAddr != "" {
		redisStore := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr}), cfg.Cache.TTL)
		if err := redisStore.Ping(ctx); err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.Cache.RedisAddr, "error", err)
			os.Exit(1)
		}
		cacheStore = redisStore
		slog.Info("Using Redis result cache", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	} else {
		cacheStore = cache.NewMemoryStore(cfg.Cache.TTL)
		slog.Info("Using in-process result cache", "ttl", cfg.Cache.TTL)
	}

	// 5. LLM, embeddings, pipeline executor
	provider := llm.NewProvider(llm.Options{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		PromptRev: cfg.LLM.PromptRev,
	})
	embedder := embeddings.NewProvider(cfg.Embeddings, cfg.LLM.APIKey)

	executor := pipeline.New(pipeline.Options{
		Store:        st,
		Cache:        cacheStore,
		CacheEnabled: cfg.Cache.Enabled,
		LLM:          provider,
		LLMTimeout:   cfg.LLM.Timeout,
		Embedder:     embedder,
		Rules:        rules.Config{PreferredJurisdiction: cfg.Review.PreferredJurisdiction},
		PromptRev:    cfg.LLM.PromptRev,
	})

	// 6. Worker pool (before the HTTP server so intake can enqueue)
	workerPool := queue.NewWorkerPool(st, &cfg.Queue, executor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 7. Retention cleanup
	cleanupService := cleanup.NewService(cfg.Retention, st)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 8. Services and HTTP server
	documentService := services.NewDocumentService(st)
	reviewService := services.NewReviewService(st, workerPool, cfg.Review)
	findingsService := services.NewFindingsService(st, cfg.Review)

	httpServer := api.NewServer(dbClient, documentService, reviewService, findingsService, workerPool)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("reviewd started successfully", "workers", cfg.Queue.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: drain workers, then stop HTTP
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — incomplete runs will be orphan-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
