// Package maintenance runs periodic housekeeping for the select journal.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/s1-storage/s1/internal/journal"
)

type Config struct {
	// RetentionAge is how old an entry must be before it is pruned. Zero
	// disables pruning.
	RetentionAge      time.Duration
	RetentionInterval time.Duration
}

type Service struct {
	Journal journal.Pruner
	Config  Config
	Logger  *slog.Logger
	Clock   func() time.Time
}

type RetentionSummary struct {
	Cutoff         time.Time `json:"cutoff"`
	EntriesDeleted int64     `json:"entries_deleted"`
	Skipped        bool      `json:"skipped,omitempty"`
}

// Run prunes on every RetentionInterval tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.Config.RetentionAge <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "journal retention cycle failed", slog.Any("error", err))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "journal retention cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	if s.Journal == nil {
		return RetentionSummary{}, fmt.Errorf("journal is required")
	}
	if s.Config.RetentionAge <= 0 {
		return RetentionSummary{Skipped: true}, nil
	}

	cutoff := s.now().UTC().Add(-s.Config.RetentionAge)
	deleted, err := s.Journal.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return RetentionSummary{Cutoff: cutoff}, err
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	entriesPrunedTotal.Add(float64(deleted))
	return RetentionSummary{Cutoff: cutoff, EntriesDeleted: deleted}, nil
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Service) interval() time.Duration {
	if s.Config.RetentionInterval <= 0 {
		return time.Hour
	}
	return s.Config.RetentionInterval
}
