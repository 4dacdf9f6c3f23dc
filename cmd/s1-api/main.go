package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s1-storage/s1/internal/api"
	"github.com/s1-storage/s1/internal/auth"
	"github.com/s1-storage/s1/internal/config"
	"github.com/s1-storage/s1/internal/journal"
	journalpostgres "github.com/s1-storage/s1/internal/journal/postgres"
	"github.com/s1-storage/s1/internal/maintenance"
	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/s3select"
	"github.com/s1-storage/s1/internal/storage"
	"github.com/s1-storage/s1/internal/storage/backend"
	"github.com/s1-storage/s1/internal/storage/cache"
	"github.com/s1-storage/s1/internal/table"
	duckdbdecoder "github.com/s1-storage/s1/internal/table/duckdb"
	"github.com/s1-storage/s1/internal/table/parquetfile"
)

func main() {
	cfg, err := config.LoadFromEnv("s1-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	raw, err := backend.Open(cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	var objects storage.ObjectStore = raw
	var cacheAdmin api.CacheAdmin
	if cfg.Storage.CacheSize > 0 {
		cached := cache.New(raw, cfg.Storage.CacheSize)
		objects = cached
		cacheAdmin = cached
	}

	var decoder table.Decoder = parquetfile.NewDecoder()
	if cfg.Select.Decoder == config.DecoderDuckDB {
		decoder = &duckdbdecoder.Decoder{Timeout: cfg.Select.DecodeTimeout}
	}

	readiness := []api.ReadinessCheck{api.CheckObjectStore(raw)}
	var journalRepo journal.Repository
	var retention *maintenance.Service
	if cfg.Journal.Enabled() {
		var journalDB *sql.DB
		journalDB, err = journalpostgres.Open(context.Background(), journalpostgres.DBConfigFromJournal(cfg.Journal, cfg.Service.Name))
		if err != nil {
			logger.Error("failed to open journal db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = journalDB.Close() }()
		repo := journalpostgres.NewRepository(journalDB)
		journalRepo = repo
		readiness = append(readiness, api.CheckJournal(repo))
		retention = &maintenance.Service{
			Journal: repo,
			Config: maintenance.Config{
				RetentionAge:      cfg.Journal.Retention,
				RetentionInterval: cfg.Journal.RetentionInterval,
			},
			Logger: logger,
		}
	}

	deps := api.Dependencies{
		Logger:            logger,
		Objects:           objects,
		Select:            s3select.NewService(objects, decoder, logger),
		Cache:             cacheAdmin,
		Journal:           journalRepo,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		SelectTimeout:     cfg.Select.DecodeTimeout,
	}
	if retention != nil {
		deps.Retention = retention
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAccessKeyValidator(cfg.Auth.AccessKeys)
		if err != nil {
			logger.Error("failed to parse access keys", slog.Any("error", err))
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

	if retention != nil {
		go func() {
			if err := retention.Run(ctx); err != nil {
				logger.Error("journal retention worker failed", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("backend", string(cfg.Storage.Backend)),
			slog.Int("cache_size", cfg.Storage.CacheSize),
			slog.Bool("journal", journalRepo != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
