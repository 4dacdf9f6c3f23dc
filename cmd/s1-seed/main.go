package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/s1-storage/s1/internal/config"
	"github.com/s1-storage/s1/internal/demo/seed"
	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/storage/backend"
)

func main() {
	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}
	flag.StringVar(&seedCfg.Bucket, "bucket", seedCfg.Bucket, "target bucket")
	flag.StringVar(&seedCfg.Key, "key", seedCfg.Key, "target object key")
	flag.IntVar(&seedCfg.Rows, "rows", seedCfg.Rows, "number of sample rows")
	flag.Int64Var(&seedCfg.Seed, "seed", seedCfg.Seed, "random seed")
	flag.Parse()

	cfg, err := config.LoadFromEnv("s1-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	store, err := backend.Open(cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	svc, err := seed.NewService(seedCfg, store, logger)
	if err != nil {
		logger.Error("invalid seed settings", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := svc.Run(ctx); err != nil {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
}
