package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/citaplan/internal/api/router"
	"github.com/example/citaplan/internal/assistant"
	"github.com/example/citaplan/internal/booking"
	"github.com/example/citaplan/internal/channels/whatsapp"
	appconfig "github.com/example/citaplan/internal/config"
	"github.com/example/citaplan/internal/leads"
	"github.com/example/citaplan/internal/notify"
	"github.com/example/citaplan/internal/observability/metrics"
	"github.com/example/citaplan/internal/schedule"
	"github.com/example/citaplan/pkg/logging"
)

func main() {
	// .env is optional; real environment variables win either way.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting citaplan API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Storage: Postgres when configured, in-memory otherwise (local runs).
	var (
		store    schedule.Store
		ledger   schedule.Ledger
		leadRepo leads.Repository
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database not reachable", "error", err)
			os.Exit(1)
		}
		store = schedule.NewPostgresStore(pool)
		ledger = schedule.NewPostgresLedger(pool)
		leadRepo = leads.NewPostgresRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		store = schedule.NewInMemoryStore()
		ledger = schedule.NewInMemoryLedger()
		leadRepo = leads.NewInMemoryRepository()
	}

	redisClient := buildRedisClient(ctx, cfg, logger)

	// LLM-backed date extraction; booking still works without it.
	var extractor *assistant.Extractor
	if cfg.GeminiAPIKey != "" {
		llm, err := assistant.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to init gemini client", "error", err)
			os.Exit(1)
		}
		defer llm.Close()
		extractor = assistant.NewExtractor(llm, cfg.LLMTimeout, logger)
	} else {
		logger.Warn("GEMINI_API_KEY not set, natural-language extraction disabled")
	}

	confirmer := notify.NewConfirmer(buildEmailSender(ctx, cfg, logger), logger)

	checker := schedule.NewChecker(store, ledger, logger)
	orchestrator := booking.NewOrchestrator(store, ledger, checker, leadRepo, extractor, confirmer, logger)

	bookingMetrics := metrics.NewBookingMetrics(nil)
	webhookMetrics := metrics.NewWebhookMetrics(nil)

	var whatsappAdapter *whatsapp.Adapter
	if cfg.WhatsAppVerifyToken != "" && cfg.WhatsAppBusinessID != "" {
		var convs booking.ConversationStore
		var processed *whatsapp.ProcessedStore
		if redisClient != nil {
			convs = booking.NewRedisConversationStore(redisClient)
			processed = whatsapp.NewProcessedStore(redisClient, logger)
		} else {
			logger.Warn("redis not available, webhook dedup and conversations are per-process")
			convs = booking.NewInMemoryConversationStore()
		}
		rescheduler := booking.NewRescheduler(store, ledger, checker, convs, leadRepo, extractor, confirmer, logger)
		whatsappAdapter = whatsapp.NewAdapter(whatsapp.AdapterConfig{
			VerifyToken:   cfg.WhatsAppVerifyToken,
			AppSecret:     cfg.WhatsAppAppSecret,
			AccessToken:   cfg.WhatsAppAccessToken,
			PhoneNumberID: cfg.WhatsAppPhoneID,
			BusinessID:    cfg.WhatsAppBusinessID,
			DefaultTypeID: cfg.WhatsAppDefaultTypeID,
		}, nil, processed, convs, rescheduler, orchestrator, leadRepo, webhookMetrics, logger)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		BookingHandler:     booking.NewHandler(orchestrator, bookingMetrics, logger),
		LeadsHandler:       leads.NewHandler(leadRepo, logger),
		WhatsAppAdapter:    whatsappAdapter,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildRedisClient returns a verified Redis client or nil when unavailable.
func buildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// buildEmailSender picks the configured provider, falling back to the stub.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		sender, err := notify.NewSESSender(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.EmailFromAddr,
			FromName:  cfg.EmailFromName,
		}, logger)
		if err != nil {
			logger.Warn("ses sender unavailable, emails disabled", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		return sender
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddr,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("no email provider configured, emails disabled")
	return notify.NewStubEmailSender(logger)
}
