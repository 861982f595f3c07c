package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	chathandler "github.com/sertaodev/pnae-assistant-go/internal/chat/handler"
	chatservice "github.com/sertaodev/pnae-assistant-go/internal/chat/service"
	"github.com/sertaodev/pnae-assistant-go/internal/config"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/handler"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/cache"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/client"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/jobs"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/resilience"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/supabase"
	"github.com/sertaodev/pnae-assistant-go/internal/port"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = godotenv.Load()

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("otp_ttl", cfg.OTPTTL),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Int("job_workers", cfg.JobWorkers),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pnae-assistant")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	questionCache := cache.New[[]domain.OnboardingQuestion](cfg.CacheTTL)
	taskCache := cache.New[[]domain.TaskCatalogEntry](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	supabaseCB := resilience.NewCircuitBreaker("supabase")
	llmCB := resilience.NewCircuitBreaker("llm")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}
	store := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		supabaseCB,
		resilienceCfg,
		logger,
	)

	var generator port.Generator
	if cfg.LLMProvider == "mock" || cfg.LLMAPIKey == "" {
		logger.Info("using mock LLM generator")
		generator = client.NewMockLLM()
	} else {
		logger.Info("using LLM provider",
			zap.String("base_url", cfg.LLMBaseURL),
			zap.String("model", cfg.LLMModel),
		)
		generator = client.NewLLMClient(httpClient, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, llmCB, resilienceCfg, metrics, logger)
	}

	// --- Catalog ---
	cat := catalog.New(store, store, questionCache, taskCache, metrics, logger)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := cat.Seed(seedCtx); err != nil {
		logger.Warn("catalog seed failed, continuing with existing data", zap.Error(err))
	}
	cancelSeed()

	// --- Background jobs ---
	queue := jobs.NewQueue(int64(cfg.JobWorkers), metrics, logger)

	// --- Services ---
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.OTPTTL, cfg.DevMode, logger)
	producerSvc := service.NewProducerService(store, logger)
	onboardingSvc := service.NewOnboardingService(store, store, cat, logger)
	formSvc := service.NewFormalizationService(store, store, store, store, cat, metrics, logger)
	guideSvc := service.NewGuideService(store, store, generator, queue, metrics, logger)
	formSvc.SetPregenerator(guideSvc)
	chatSvc := chatservice.NewChatService(store, formSvc, generator, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Auth:          authSvc,
		Producers:     producerSvc,
		Onboarding:    onboardingSvc,
		Formalization: formSvc,
		Guides:        guideSvc,
		Catalog:       cat,
		Jobs:          queue,
		ChatMessage:   chathandler.MessageHandler(chatSvc, logger),
		ChatMessageV2: chathandler.MessageV2Handler(chatSvc, logger),
		Metrics:       metrics,
		Logger:        logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	if err := queue.Shutdown(ctx); err != nil {
		logger.Warn("job queue did not drain in time", zap.Error(err))
	}

	logger.Info("server stopped")
}
