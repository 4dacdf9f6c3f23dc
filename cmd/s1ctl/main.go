package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/s1-storage/s1/internal/cli/s1ctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("S1_CLI_TIMEOUT")), 10*time.Second)
	options := s1ctl.Options{
		BaseURL:   envOr("S1_API_URL", "http://localhost:8080"),
		APIKey:    strings.TrimSpace(os.Getenv("S1_API_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("S1_SECRET_KEY")),
		Region:    strings.TrimSpace(os.Getenv("S1_REGION")),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	code := s1ctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid S1_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
