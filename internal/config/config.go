package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type StorageBackend string

const (
	BackendLocal StorageBackend = "local"
	BackendS3    StorageBackend = "s3"
	BackendGCS   StorageBackend = "gcs"
)

type DecoderKind string

const (
	DecoderParquet DecoderKind = "parquet"
	DecoderDuckDB  DecoderKind = "duckdb"
)

const gcsEndpoint = "https://storage.googleapis.com"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Storage       StorageConfig
	ObjectStore   ObjectStoreConfig
	Select        SelectConfig
	Journal       JournalConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StorageConfig struct {
	Backend   StorageBackend
	LocalPath string
	// CacheSize is the read-through cache capacity in objects; 0 disables it.
	CacheSize int
	// GCSProject is accepted for compatibility and only reported in logs.
	GCSProject string
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type SelectConfig struct {
	Decoder       DecoderKind
	DecodeTimeout time.Duration
	BucketRegion  string
}

type JournalConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	// Retention is how long entries are kept; zero keeps them forever.
	Retention         time.Duration
	RetentionInterval time.Duration
}

func (j JournalConfig) Enabled() bool {
	return strings.TrimSpace(j.DSN) != ""
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	AccessKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("S1_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid S1_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	// Unprefixed names predate the S1_ keys and lose when both are set.
	if err := applyLegacy(lookup, &cfg); err != nil {
		return Config{}, err
	}

	backend := string(cfg.Storage.Backend)
	decoder := string(cfg.Select.Decoder)
	_, endpointSet := lookup("S1_OBJECTSTORE_ENDPOINT")

	appliers := []func() error{
		func() error { return applyString(lookup, "S1_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "S1_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "S1_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "S1_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "S1_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "S1_STORAGE_BACKEND", &backend) },
		func() error { return applyString(lookup, "S1_LOCAL_STORAGE_PATH", &cfg.Storage.LocalPath) },
		func() error { return applyInt(lookup, "S1_STORAGE_CACHE_SIZE", &cfg.Storage.CacheSize) },
		func() error { return applyString(lookup, "S1_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "S1_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "S1_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "S1_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "S1_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "S1_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyString(lookup, "S1_DECODER", &decoder) },
		func() error { return applyDuration(lookup, "S1_DECODE_TIMEOUT", &cfg.Select.DecodeTimeout) },
		func() error { return applyString(lookup, "S1_BUCKET_REGION", &cfg.Select.BucketRegion) },
		func() error { return applyString(lookup, "S1_JOURNAL_DSN", &cfg.Journal.DSN) },
		func() error { return applyInt(lookup, "S1_JOURNAL_MAX_OPEN_CONNS", &cfg.Journal.MaxOpenConns) },
		func() error { return applyInt(lookup, "S1_JOURNAL_MAX_IDLE_CONNS", &cfg.Journal.MaxIdleConns) },
		func() error { return applyDuration(lookup, "S1_JOURNAL_CONN_MAX_IDLE_TIME", &cfg.Journal.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "S1_JOURNAL_CONN_MAX_LIFETIME", &cfg.Journal.ConnMaxLifetime) },
		func() error { return applyDuration(lookup, "S1_JOURNAL_RETENTION", &cfg.Journal.Retention) },
		func() error { return applyDuration(lookup, "S1_JOURNAL_RETENTION_INTERVAL", &cfg.Journal.RetentionInterval) },
		func() error { return applyBool(lookup, "S1_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "S1_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "S1_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "S1_AUTH_ACCESS_KEYS", &cfg.Auth.AccessKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Storage.Backend = StorageBackend(strings.ToLower(backend))
	switch cfg.Storage.Backend {
	case BackendLocal, BackendS3:
	case BackendGCS:
		if !endpointSet {
			cfg.ObjectStore.Endpoint = gcsEndpoint
			cfg.ObjectStore.UseSSL = true
		}
	default:
		return Config{}, fmt.Errorf("invalid S1_STORAGE_BACKEND: %q", backend)
	}
	cfg.Select.Decoder = DecoderKind(strings.ToLower(decoder))
	if cfg.Select.Decoder != DecoderParquet && cfg.Select.Decoder != DecoderDuckDB {
		return Config{}, fmt.Errorf("invalid S1_DECODER: %q", decoder)
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Storage.CacheSize < 0 {
		return Config{}, fmt.Errorf("storage cache size must be >= 0")
	}
	if cfg.Journal.Retention < 0 {
		return Config{}, fmt.Errorf("journal retention must be >= 0")
	}
	if cfg.Journal.Retention > 0 && cfg.Journal.RetentionInterval <= 0 {
		return Config{}, fmt.Errorf("journal retention interval must be > 0")
	}
	if cfg.Storage.Backend == BackendLocal && cfg.Storage.LocalPath == "" {
		return Config{}, fmt.Errorf("local storage path is required")
	}
	return cfg, nil
}

func applyLegacy(lookup LookupFunc, cfg *Config) error {
	var backend string
	if err := applyString(lookup, "STORAGE_BACKEND", &backend); err != nil {
		return err
	}
	if backend != "" {
		cfg.Storage.Backend = StorageBackend(backend)
	}
	if err := applyString(lookup, "LOCAL_STORAGE_PATH", &cfg.Storage.LocalPath); err != nil {
		return err
	}
	if err := applyInt(lookup, "STORAGE_CACHE_SIZE", &cfg.Storage.CacheSize); err != nil {
		return err
	}
	if err := applyString(lookup, "GCS_PROJECT", &cfg.Storage.GCSProject); err != nil {
		return err
	}
	var port int
	if err := applyInt(lookup, "PORT", &port); err != nil {
		return err
	}
	if port > 0 {
		cfg.HTTP.Address = fmt.Sprintf(":%d", port)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "s1-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   BackendLocal,
			LocalPath: "/data",
			CacheSize: 128,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
		},
		Select: SelectConfig{
			Decoder:       DecoderParquet,
			DecodeTimeout: 30 * time.Second,
			BucketRegion:  "eu-west-2",
		},
		Journal: JournalConfig{
			MaxOpenConns:      10,
			MaxIdleConns:      10,
			ConnMaxIdleTime:   5 * time.Minute,
			ConnMaxLifetime:   30 * time.Minute,
			Retention:         7 * 24 * time.Hour,
			RetentionInterval: time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
