// Package journal records the outcome of every select request.
package journal

import (
	"context"
	"time"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Entry struct {
	ID            int64     `json:"id"`
	Bucket        string    `json:"bucket"`
	Key           string    `json:"key"`
	Expression    string    `json:"expression"`
	OutputFormat  string    `json:"output_format"`
	StatusCode    int       `json:"status_code"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Rows          int64     `json:"rows"`
	ScannedBytes  int64     `json:"scanned_bytes"`
	ReturnedBytes int64     `json:"returned_bytes"`
	DurationMs    int64     `json:"duration_ms"`
	AccessKey     string    `json:"access_key,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
}

// Pruner removes entries created before cutoff and reports how many went.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Repository interface {
	Recorder
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	HealthCheck(ctx context.Context) error
}

// ClampLimit maps a caller supplied page size into [1, MaxListLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
