package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/s1-storage/s1/internal/config"
	journalpostgres "github.com/s1-storage/s1/internal/journal/postgres"
	"github.com/s1-storage/s1/internal/migrations"
	"github.com/s1-storage/s1/internal/observability"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadFromEnv("s1-migrate")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	if !cfg.Journal.Enabled() {
		logger.Error("S1_JOURNAL_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := journalpostgres.Open(ctx, journalpostgres.DBConfig{DSN: cfg.Journal.DSN, ApplicationName: cfg.Service.Name})
	if err != nil {
		logger.Error("failed to open journal db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			logger.Error("migration up failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("applied migrations", slog.Int("count", applied))
	case "down":
		reverted, err := runner.Down(ctx, db, *steps)
		if err != nil {
			logger.Error("migration down failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("rolled back migrations", slog.Int("count", reverted))
	case "status":
		states, err := runner.Status(ctx, db)
		if err != nil {
			logger.Error("migration status failed", slog.Any("error", err))
			os.Exit(1)
		}
		for _, state := range states {
			attrs := []any{slog.Int64("version", state.Version), slog.String("name", state.Name), slog.Bool("applied", state.Applied())}
			if state.Applied() {
				attrs = append(attrs, slog.Time("applied_at", *state.AppliedAt))
			}
			logger.Info("migration", attrs...)
		}
	default:
		logger.Error("invalid direction", slog.String("direction", *direction))
		os.Exit(1)
	}
}
