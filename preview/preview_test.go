package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFindsOGImage(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<meta property="og:title" content="A product"/>
			<meta property="og:image" content="https://cdn.example/img.jpg"/>
		</head><body></body></html>`))
	}))
	defer srv.Close()

	r := NewResolver(NewMemoryCache())
	img, ok := r.Resolve(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/img.jpg", img)

	// Second resolution within the TTL must be served from cache.
	img2, ok2 := r.Resolve(context.Background(), srv.URL)
	require.True(t, ok2)
	assert.Equal(t, img, img2)
	assert.Equal(t, int64(1), fetches.Load(), "same URL twice must trigger exactly one fetch")
}

func TestResolveCachesNegative(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`<html><head><title>no og tags</title></head></html>`))
	}))
	defer srv.Close()

	r := NewResolver(NewMemoryCache())
	_, ok := r.Resolve(context.Background(), srv.URL)
	assert.False(t, ok)
	_, ok = r.Resolve(context.Background(), srv.URL)
	assert.False(t, ok)
	assert.Equal(t, int64(1), fetches.Load(), "negative result must be cached")
}

func TestResolveNon200IsNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewResolver(NewMemoryCache())
	_, ok := r.Resolve(context.Background(), srv.URL)
	assert.False(t, ok)
}

func TestResolveUnreachableHostIsNegative(t *testing.T) {
	r := NewResolver(NewMemoryCache())
	_, ok := r.Resolve(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.False(t, ok)
}

func TestResolveSendsBrowserIdentity(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	r := NewResolver(NewMemoryCache())
	r.Resolve(context.Background(), srv.URL)
	assert.Contains(t, ua, "Mozilla/5.0")
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Set(context.Background(), "k", Entry{ImageURL: "x", Found: true}, time.Hour))

	_, hit, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, hit)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, hit, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, hit, "expired entry must miss")
}

func TestCacheKeyStable(t *testing.T) {
	assert.Equal(t, CacheKey("https://a.example"), CacheKey("https://a.example"))
	assert.NotEqual(t, CacheKey("https://a.example"), CacheKey("https://b.example"))
}
