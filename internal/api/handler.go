package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s1-storage/s1/internal/config"
	"github.com/s1-storage/s1/internal/journal"
	"github.com/s1-storage/s1/internal/maintenance"
	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/s3select"
	"github.com/s1-storage/s1/internal/storage"
	"github.com/s1-storage/s1/internal/storage/cache"
)

type ReadinessCheck func(ctx context.Context) error

type SelectExecutor interface {
	Execute(ctx context.Context, req s3select.Request) (s3select.Result, error)
}

type RetentionRunner interface {
	RunRetentionOnce(ctx context.Context) (maintenance.RetentionSummary, error)
}

type CacheAdmin interface {
	Stats() cache.Stats
	Clear()
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	// Objects serves GetObject and ListObjects. It is normally the
	// read-through cache wrapping the configured backend.
	Objects storage.ObjectStore
	Select  SelectExecutor
	Cache   CacheAdmin
	Journal journal.Repository
	// SelectTimeout bounds one select from fetch to render. Zero means no
	// limit beyond the request context.
	SelectTimeout time.Duration
	Retention     RetentionRunner
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
	protected.HandleFunc("GET /v1/cache", func(w http.ResponseWriter, r *http.Request) {
		handleCacheStats(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/cache", func(w http.ResponseWriter, r *http.Request) {
		handleCacheClear(deps, w, r)
	})
	protected.HandleFunc("GET /v1/select-journal", func(w http.ResponseWriter, r *http.Request) {
		handleSelectJournal(deps, w, r)
	})
	protected.HandleFunc("POST /v1/select-journal/prune", func(w http.ResponseWriter, r *http.Request) {
		handleJournalPrune(deps, w, r)
	})
	protected.HandleFunc("GET /{bucket}", func(w http.ResponseWriter, r *http.Request) {
		handleBucket(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") == "" {
			handleBucket(cfg, deps, w, r)
			return
		}
		handleGetObject(deps, w, r)
	})
	protected.HandleFunc("POST /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		handleObjectPost(deps, w, r)
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
	mux.Handle("GET /v1/cache", protectedHandler)
	mux.Handle("DELETE /v1/cache", protectedHandler)
	mux.Handle("GET /v1/select-journal", protectedHandler)
	mux.Handle("POST /v1/select-journal/prune", protectedHandler)
	mux.Handle("GET /{bucket}", protectedHandler)
	mux.Handle("GET /{bucket}/{key...}", protectedHandler)
	mux.Handle("POST /{bucket}/{key...}", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckObjectStore(store storage.ObjectStore) ReadinessCheck {
	return func(ctx context.Context) error {
		return store.HealthCheck(ctx)
	}
}

func CheckJournal(repo journal.Repository) ReadinessCheck {
	return func(ctx context.Context) error {
		return repo.HealthCheck(ctx)
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
