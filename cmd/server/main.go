package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/js-web-coder/aca-ally/internal/api"
	"github.com/js-web-coder/aca-ally/internal/config"
	"github.com/js-web-coder/aca-ally/internal/conversation"
	"github.com/js-web-coder/aca-ally/internal/feed"
	"github.com/js-web-coder/aca-ally/internal/llm"
	"github.com/js-web-coder/aca-ally/internal/orchestrator"
	"github.com/js-web-coder/aca-ally/internal/routing"
	"github.com/js-web-coder/aca-ally/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(".env"); err != nil {
		logger.Warn(".env file not found", zap.Error(err))
	}

	cfg := config.New()

	factory := llm.NewFactory(cfg)
	clients, errs := factory.CreateClients(cfg.ProviderPriority)
	for _, err := range errs {
		logger.Warn("provider not configured", zap.Error(err))
	}
	if len(clients) == 0 {
		logger.Warn("no ai providers configured, every answer will be degraded")
	}

	durable, err := conversation.NewDurableStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open conversation database",
			zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer durable.Close()

	cache, err := conversation.OpenLocalCache(cfg.CachePath)
	if err != nil {
		logger.Fatal("failed to open conversation cache",
			zap.String("path", cfg.CachePath), zap.Error(err))
	}
	defer cache.Close()

	convStore := conversation.NewStore(durable, cache, logger)

	var attempts storage.Recorder
	if cfg.AttemptLogPath != "" {
		rec, err := storage.NewFileRecorder(cfg.AttemptLogPath)
		if err != nil {
			logger.Warn("failed to init attempt recorder", zap.Error(err))
		} else {
			attempts = rec
		}
	}

	primary := ""
	if len(cfg.ProviderPriority) > 0 {
		primary = cfg.ProviderPriority[0]
	}
	router := routing.NewSubjectRouter(primary)
	systemPrompt := readSystemPrompt(logger, cfg.SystemPromptPath)

	orch := orchestrator.New(clients, cfg.ProviderPriority, router, convStore,
		attempts, systemPrompt, cfg.ProviderTimeout, logger)
	relay := orchestrator.NewRelay(clients, cfg.ProviderPriority, router, convStore,
		systemPrompt, logger)

	posts, err := feed.NewPostStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open post store",
			zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer posts.Close()

	trending := feed.NewTrending(posts, cfg.TrendingLimit, logger)
	if err := trending.Start(cfg.TrendingRefreshSpec); err != nil {
		logger.Fatal("failed to start trending refresher", zap.Error(err))
	}
	defer trending.Stop()

	handler := api.NewHandler(orch, relay, convStore, posts, trending,
		api.HeaderAuthenticator{}, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func readSystemPrompt(logger *zap.Logger, path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("system prompt file not found or unreadable",
			zap.String("path", path), zap.Error(err))
		return ""
	}
	return string(data)
}
