// Package seed writes deterministic sample Parquet objects into a backend so
// a fresh deployment has something to select from.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/storage"
	"github.com/s1-storage/s1/internal/table/parquetfile"
)

const parquetContentType = "application/vnd.apache.parquet"

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

type Service struct {
	cfg   Config
	store storage.ObjectStore
	log   *slog.Logger
}

func NewService(cfg Config, store storage.ObjectStore, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, store: store, log: observability.OrDiscard(logger)}, nil
}

// Run encodes cfg.Rows sample rows and uploads them. The same seed always
// produces the same rows.
func (s *Service) Run(ctx context.Context) (storage.ObjectInfo, error) {
	rows := NewGenerator(s.cfg.Seed).Rows(s.cfg.Rows)
	data, err := parquetfile.Encode(rows)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("encode sample rows: %w", err)
	}

	if ensurer, ok := s.store.(bucketEnsurer); ok {
		if err := ensurer.EnsureBucket(ctx, s.cfg.Bucket); err != nil {
			return storage.ObjectInfo{}, err
		}
	}
	info, err := s.store.Put(ctx, s.cfg.Bucket, s.cfg.Key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload sample object: %w", err)
	}

	s.log.Info(
		"seeded sample object",
		slog.String("bucket", s.cfg.Bucket),
		slog.String("key", info.Key),
		slog.Int("rows", len(rows)),
		slog.Int64("bytes", int64(len(data))),
		slog.Int64("seed", s.cfg.Seed),
	)
	return info, nil
}
