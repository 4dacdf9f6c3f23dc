package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/s1-storage/s1/internal/journal"
)

var journalColumns = []string{
	"entry_id", "bucket", "object_key", "expression", "output_format", "status_code", "error_code",
	"row_count", "scanned_bytes", "returned_bytes", "duration_ms", "access_key", "trace_id", "created_at",
}

func TestRecordInsertsEntry(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO select_journal (`)).
		WithArgs("reports", "people.parquet", "SELECT * FROM S3Object", "JSON", 200, "", int64(3), int64(512), int64(90), int64(7), "k1", "trace-1").
		WillReturnRows(sqlmock.NewRows([]string{"entry_id", "created_at"}).AddRow(int64(41), now))

	entry, err := repo.Record(context.Background(), journal.Entry{
		Bucket:        "reports",
		Key:           "people.parquet",
		Expression:    "SELECT * FROM S3Object",
		OutputFormat:  "JSON",
		StatusCode:    200,
		Rows:          3,
		ScannedBytes:  512,
		ReturnedBytes: 90,
		DurationMs:    7,
		AccessKey:     "k1",
		TraceID:       "trace-1",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID != 41 {
		t.Fatalf("ID = %d", entry.ID)
	}
	if !entry.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", entry.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestRecordWrapsDatabaseError(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO select_journal (`)).WillReturnError(boom)

	_, err := repo.Record(context.Background(), journal.Entry{Bucket: "b", Key: "k", StatusCode: 404, ErrorCode: "NoSuchKey"})
	if !errors.Is(err, boom) {
		t.Fatalf("Record() error = %v, want wrapped %v", err, boom)
	}
	assertSQLMock(t, mock)
}

func TestListRecentClampsLimitAndScansRows(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM select_journal
ORDER BY created_at DESC, entry_id DESC
LIMIT $1`)).
		WithArgs(journal.MaxListLimit).
		WillReturnRows(sqlmock.NewRows(journalColumns).
			AddRow(int64(2), "reports", "b.parquet", "SELECT name FROM S3Object", "CSV", 400, "QueryExecutionError", int64(0), int64(100), int64(0), int64(1), "", "t2", now).
			AddRow(int64(1), "reports", "a.parquet", "SELECT * FROM S3Object", "JSON", 200, "", int64(4), int64(100), int64(60), int64(3), "k1", "t1", now.Add(-time.Minute)))

	entries, err := repo.ListRecent(context.Background(), 10_000)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d", len(entries))
	}
	if entries[0].ID != 2 || entries[0].ErrorCode != "QueryExecutionError" || entries[0].StatusCode != 400 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Key != "a.parquet" || entries[1].Rows != 4 || entries[1].AccessKey != "k1" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	assertSQLMock(t, mock)
}

func TestListRecentReturnsEmptySlice(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM select_journal`)).
		WithArgs(journal.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(journalColumns))

	entries, err := repo.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %#v, want empty slice", entries)
	}
	assertSQLMock(t, mock)
}

func TestHealthCheckPingsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing()

	if err := NewRepository(db).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestDeleteOlderThanReportsRowsAffected(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM select_journal WHERE created_at < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 12 {
		t.Fatalf("deleted = %d", deleted)
	}
	assertSQLMock(t, mock)
}

func TestDeleteOlderThanWrapsDatabaseError(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM select_journal`)).WillReturnError(errors.New("locked"))

	if _, err := repo.DeleteOlderThan(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
