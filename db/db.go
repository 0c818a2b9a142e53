// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// lastSyncKey is the kv key recording the completion time of the last successful content sync.
const lastSyncKey = "last_sync"

// LastSyncLayout matches the UTC timestamp format stored in kv and surfaced on /status.
const LastSyncLayout = "2006-01-02 15:04:05"

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database dsn")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS preview_cache (
			url_hash TEXT PRIMARY KEY,
			image_url TEXT,
			found BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id INTEGER REFERENCES categories(id)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT,
			sku TEXT,
			short_description TEXT,
			full_description TEXT,
			regular_price DOUBLE PRECISION DEFAULT 0,
			sale_price DOUBLE PRECISION DEFAULT 0,
			status TEXT DEFAULT 'publish',
			visibility TEXT DEFAULT 'public',
			stock_status TEXT DEFAULT 'instock',
			password_protected BOOLEAN DEFAULT FALSE,
			tags TEXT,
			attributes TEXT,
			images TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS product_categories (
			product_id INTEGER NOT NULL REFERENCES products(id),
			category_id INTEGER NOT NULL REFERENCES categories(id),
			PRIMARY KEY (product_id, category_id)
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id SERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT,
			content TEXT,
			status TEXT DEFAULT 'publish',
			visibility TEXT DEFAULT 'public',
			password_protected BOOLEAN DEFAULT FALSE,
			categories TEXT,
			tags TEXT,
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_preview_cache_expires ON preview_cache(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_products_stock ON products(stock_status)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// SetKV stores or updates an operational key/value pair.
func SetKV(ctx context.Context, dbx *sql.DB, key, value string) error {
	_, err := dbx.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// GetKV returns the stored value for key, or empty string when absent.
func GetKV(ctx context.Context, dbx *sql.DB, key string) (string, error) {
	var v string
	err := dbx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// SetLastSync records a successful sync completion time (stored in UTC).
func SetLastSync(ctx context.Context, dbx *sql.DB, t time.Time) error {
	return SetKV(ctx, dbx, lastSyncKey, t.UTC().Format(LastSyncLayout))
}

// GetLastSync returns the last successful sync time, or the zero time when none is recorded.
func GetLastSync(ctx context.Context, dbx *sql.DB) (time.Time, error) {
	v, err := GetKV(ctx, dbx, lastSyncKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(LastSyncLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_sync value %q: %w", v, err)
	}
	return t.UTC(), nil
}
