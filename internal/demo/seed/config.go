package seed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/s1-storage/s1/internal/storage"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Bucket string
	Key    string
	Rows   int
	Seed   int64
}

func DefaultConfig() Config {
	return Config{
		Bucket: "demo",
		Key:    "people.parquet",
		Rows:   1000,
		Seed:   42,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "S1_SEED_BUCKET", &cfg.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "S1_SEED_KEY", &cfg.Key); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "S1_SEED_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "S1_SEED_VALUE", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := storage.ValidateBucket(c.Bucket); err != nil {
		return fmt.Errorf("S1_SEED_BUCKET: %w", err)
	}
	if _, err := storage.NormalizeKey(c.Key); err != nil {
		return fmt.Errorf("S1_SEED_KEY: %w", err)
	}
	if c.Rows < 0 {
		return fmt.Errorf("S1_SEED_ROWS must be >= 0")
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
