//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/s1-storage/s1/internal/journal"
	journalpostgres "github.com/s1-storage/s1/internal/journal/postgres"
)

func TestJournalSchemaRoundTrip(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("S1_TEST_JOURNAL_DSN"))
	if adminDSN == "" {
		t.Skip("S1_TEST_JOURNAL_DSN is not set")
	}
	db := scratchDatabase(t, adminDSN)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	runner := NewRunner()
	if applied, err := runner.Up(ctx, db, 0); err != nil || applied < 1 {
		t.Fatalf("Up() = %d, %v", applied, err)
	}
	states, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, state := range states {
		if !state.Applied() {
			t.Fatalf("migration %d (%s) not applied after Up()", state.Version, state.Name)
		}
	}

	repo := journalpostgres.NewRepository(db)
	recorded, err := repo.Record(ctx, journal.Entry{
		Bucket:       "demo",
		Key:          "people.parquet",
		Expression:   "SELECT * FROM S3Object",
		OutputFormat: "CSV",
		StatusCode:   200,
		Rows:         3,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	entries, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != recorded.ID || entries[0].Rows != 3 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteOlderThan() = %d, %v", deleted, err)
	}

	if reverted, err := runner.Down(ctx, db, 1); err != nil || reverted != 1 {
		t.Fatalf("Down() = %d, %v", reverted, err)
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('public.select_journal') IS NOT NULL`).Scan(&exists); err != nil {
		t.Fatalf("probe select_journal: %v", err)
	}
	if exists {
		t.Fatal("select_journal still exists after Down()")
	}
}

// scratchDatabase creates a throwaway database next to the one in adminDSN
// and drops it when the test ends.
func scratchDatabase(t *testing.T, adminDSN string) *sql.DB {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	admin, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(admin) error = %v", err)
	}

	name := "s1_journal_it_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if _, err := admin.Exec(`CREATE DATABASE ` + name); err != nil {
		_ = admin.Close()
		t.Fatalf("CREATE DATABASE error = %v", err)
	}

	scratch := *parsed
	scratch.Path = "/" + name
	db, err := sql.Open("pgx", scratch.String())
	if err != nil {
		t.Fatalf("sql.Open(scratch) error = %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_, _ = admin.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name)
		if _, err := admin.Exec(`DROP DATABASE IF EXISTS ` + name); err != nil {
			t.Errorf("DROP DATABASE error = %v", err)
		}
		_ = admin.Close()
	})
	return db
}
