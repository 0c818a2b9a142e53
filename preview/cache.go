package preview

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache. Suitable for single-instance
// deployments and tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return e.entry, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{entry: e, expiresAt: c.now().Add(ttl)}
	return nil
}

// PGCache stores preview entries in the preview_cache table so replicas share
// lookups and entries survive restarts. Expired rows are ignored on read and
// overwritten on write; no reaper is needed at this table's size.
type PGCache struct {
	DB *sql.DB
}

func (c *PGCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	err := c.DB.QueryRowContext(ctx,
		`SELECT COALESCE(image_url,''), found FROM preview_cache WHERE url_hash=$1 AND expires_at > NOW()`,
		key).Scan(&e.ImageURL, &e.Found)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (c *PGCache) Set(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	_, err := c.DB.ExecContext(ctx,
		`INSERT INTO preview_cache (url_hash, image_url, found, expires_at, updated_at)
		 VALUES ($1,$2,$3,NOW() + make_interval(secs => $4),NOW())
		 ON CONFLICT(url_hash) DO UPDATE SET image_url=EXCLUDED.image_url, found=EXCLUDED.found,
		   expires_at=EXCLUDED.expires_at, updated_at=NOW()`,
		key, e.ImageURL, e.Found, ttl.Seconds())
	return err
}
