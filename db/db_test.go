package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return dbx
}

func TestMigrateIdempotent(t *testing.T) {
	dbx := openTestDB(t)
	// Running migrations a second time must not fail.
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestKVRoundTrip(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	if err := SetKV(ctx, dbx, "test_key", "v1"); err != nil {
		t.Fatalf("SetKV: %v", err)
	}
	if err := SetKV(ctx, dbx, "test_key", "v2"); err != nil {
		t.Fatalf("SetKV overwrite: %v", err)
	}
	got, err := GetKV(ctx, dbx, "test_key")
	if err != nil {
		t.Fatalf("GetKV: %v", err)
	}
	if got != "v2" {
		t.Errorf("GetKV = %q, want v2", got)
	}
	missing, err := GetKV(ctx, dbx, "definitely_absent")
	if err != nil || missing != "" {
		t.Errorf("GetKV absent = (%q, %v), want empty, nil", missing, err)
	}
}

func TestLastSyncRoundTrip(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	if err := SetLastSync(ctx, dbx, now); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}
	got, err := GetLastSync(ctx, dbx)
	if err != nil {
		t.Fatalf("GetLastSync: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("GetLastSync = %v, want %v", got, now)
	}
}
