// Package api exposes the chat assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqltalk/sqltalk/internal/chat"
	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/export"
	"github.com/sqltalk/sqltalk/internal/nl2sql"
	"github.com/sqltalk/sqltalk/internal/observability"
	"github.com/sqltalk/sqltalk/internal/query"
	"github.com/sqltalk/sqltalk/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// ChatService is the slice of the chat orchestrator the handlers use.
type ChatService interface {
	Respond(ctx context.Context, request chat.TurnRequest) (chat.Turn, error)
	RespondStream(ctx context.Context, request chat.TurnRequest, onChunk func(chunk string) error) (chat.Turn, error)
	History(ctx context.Context, sessionID string) ([]session.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

type Exporter interface {
	Export(ctx context.Context, request export.Request) (export.Receipt, error)
	Fetch(ctx context.Context, key string) (export.Object, error)
	Remove(ctx context.Context, key string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chat              ChatService
	Translator        nl2sql.Translator
	Schema            chat.SchemaSource
	QueryEngine       query.Engine
	Exporter          Exporter
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /v1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		handleChatStream(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(cfg, deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{session}/history", func(w http.ResponseWriter, r *http.Request) {
		handleClearHistory(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("POST /v1/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /v1/exports", func(w http.ResponseWriter, r *http.Request) {
		handleExport(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/exports/{key...}", func(w http.ResponseWriter, r *http.Request) {
		handleExportDownload(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/exports/{key...}", func(w http.ResponseWriter, r *http.Request) {
		handleExportDelete(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/chat", protectedHandler)
	mux.Handle("POST /v1/chat/stream", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}/history", protectedHandler)
	mux.Handle("DELETE /v1/sessions/{session}/history", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("POST /v1/translate", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("POST /v1/exports", protectedHandler)
	mux.Handle("GET /v1/exports/{key...}", protectedHandler)
	mux.Handle("DELETE /v1/exports/{key...}", protectedHandler)
	// Keeps the UI catch-all from answering API paths. Without this a
	// GET to a POST-only route would serve the chat page with a 200.
	mux.HandleFunc("GET /v1/", func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "unknown API route", false, map[string]any{"path": r.URL.Path})
	})
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckTargetConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch cfg.Target.Backend {
		case "sqlite", "duckdb":
			if cfg.Target.Path == "" {
				return errors.New("target database path is not configured")
			}
		default:
			if cfg.Target.Host == "" || cfg.Target.Database == "" {
				return errors.New("target host and database are not configured")
			}
		}
		return nil
	}
}

func CheckAIConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.APIKey == "" {
			return errors.New("ai api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
