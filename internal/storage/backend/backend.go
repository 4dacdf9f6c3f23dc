// Package backend builds the configured object store backend.
package backend

import (
	"fmt"

	"github.com/s1-storage/s1/internal/config"
	"github.com/s1-storage/s1/internal/storage"
	"github.com/s1-storage/s1/internal/storage/local"
	"github.com/s1-storage/s1/internal/storage/s3"
)

// Open returns the raw backend named by cfg.Storage.Backend. Callers wrap it
// in the read-through cache themselves.
func Open(cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		store, err := local.New(cfg.Storage.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		return store, nil
	case config.BackendS3, config.BackendGCS:
		store, err := s3.New(s3.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
