package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/s1-storage/s1/internal/journal"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping journal db: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, entry journal.Entry) (journal.Entry, error) {
	query := `
INSERT INTO select_journal (
	bucket, object_key, expression, output_format, status_code, error_code,
	row_count, scanned_bytes, returned_bytes, duration_ms, access_key, trace_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING entry_id, created_at`
	if err := r.db.QueryRowContext(ctx, query,
		entry.Bucket,
		entry.Key,
		entry.Expression,
		entry.OutputFormat,
		entry.StatusCode,
		entry.ErrorCode,
		entry.Rows,
		entry.ScannedBytes,
		entry.ReturnedBytes,
		entry.DurationMs,
		entry.AccessKey,
		entry.TraceID,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return journal.Entry{}, fmt.Errorf("insert select journal entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]journal.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT entry_id, bucket, object_key, expression, output_format, status_code, error_code,
	row_count, scanned_bytes, returned_bytes, duration_ms, access_key, trace_id, created_at
FROM select_journal
ORDER BY created_at DESC, entry_id DESC
LIMIT $1`, journal.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list select journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]journal.Entry, 0)
	for rows.Next() {
		var entry journal.Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.Bucket,
			&entry.Key,
			&entry.Expression,
			&entry.OutputFormat,
			&entry.StatusCode,
			&entry.ErrorCode,
			&entry.Rows,
			&entry.ScannedBytes,
			&entry.ReturnedBytes,
			&entry.DurationMs,
			&entry.AccessKey,
			&entry.TraceID,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan select journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate select journal: %w", err)
	}
	return entries, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM select_journal WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune select journal: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune select journal rows affected: %w", err)
	}
	return deleted, nil
}
