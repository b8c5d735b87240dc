package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqltalk/sqltalk/internal/api"
	"github.com/sqltalk/sqltalk/internal/api/uistatic"
	"github.com/sqltalk/sqltalk/internal/auth"
	"github.com/sqltalk/sqltalk/internal/chat"
	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/export"
	"github.com/sqltalk/sqltalk/internal/nl2sql"
	"github.com/sqltalk/sqltalk/internal/observability"
	"github.com/sqltalk/sqltalk/internal/session"
	s3store "github.com/sqltalk/sqltalk/internal/storage/s3"
	"github.com/sqltalk/sqltalk/internal/target"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqltalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	sessionStore, err := session.Open(context.Background(), cfg.Sessions.Path)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = sessionStore.Close() }()

	targetCache := target.NewCache(nil, cfg.Target.HandleTTL)
	defer func() { _ = targetCache.Close() }()

	engine := &target.CachedEngine{Cache: targetCache, Config: cfg.Target}
	inspector := &target.CachedInspector{
		Cache:      targetCache,
		Config:     cfg.Target,
		SampleRows: cfg.UI.SchemaSampleRows,
	}

	aiClient, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize ai client", slog.Any("error", err))
		os.Exit(1)
	}

	chatService := chat.NewService(logger, aiClient, aiClient, engine, inspector, sessionStore, chat.Options{
		Dialect:       target.DialectName(cfg.Target.Backend),
		RowLimit:      cfg.UI.DefaultRowLimit,
		HistoryWindow: cfg.Sessions.HistoryWindow,
	})

	var exporter api.Exporter
	if cfg.Export.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Export.Endpoint,
			Region:           cfg.Export.Region,
			Bucket:           cfg.Export.Bucket,
			AccessKeyID:      cfg.Export.AccessKeyID,
			SecretAccessKey:  cfg.Export.SecretAccessKey,
			UseSSL:           cfg.Export.UseSSL,
			Prefix:           cfg.Export.Prefix,
			AutoCreateBucket: cfg.Export.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize export store", slog.Any("error", err))
			os.Exit(1)
		}
		exporter = export.NewService(logger, objectStore)
	}

	deps := api.Dependencies{
		Logger:      logger,
		Chat:        chatService,
		Translator:  aiClient,
		Schema:      inspector,
		QueryEngine: engine,
		Exporter:    exporter,
		UI:          uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			func(ctx context.Context) error { return sessionStore.Ping(ctx) },
			api.CheckTargetConfig(cfg),
			api.CheckAIConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("target_backend", cfg.Target.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("api server stopped")
}
