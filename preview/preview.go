// Package preview resolves social preview images (og:image) for URLs embedded
// in bot replies. Resolution is strictly best-effort: every failure mode is
// swallowed and cached as a negative entry, so message relay is never blocked
// or failed by a preview lookup.
package preview

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html"

	"github.com/tekflox/aiflowx-relay/telemetry"
)

const (
	// PositiveTTL caches a found image URL.
	PositiveTTL = 24 * time.Hour
	// NegativeTTL caches a "no image" result so failing URLs aren't re-fetched per message.
	NegativeTTL = time.Hour

	fetchTimeout = 5 * time.Second

	// Preview targets routinely sniff for crawlers; present a browser identity.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Entry is a cached resolution result. Found=false is the cached negative.
type Entry struct {
	ImageURL string
	Found    bool
}

// Cache stores resolution results keyed by URL hash. Implementations must
// tolerate concurrent readers and writers; a lost race costs one duplicate
// fetch, nothing more.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// Resolver fetches and caches og:image URLs.
type Resolver struct {
	cache  Cache
	client *http.Client
}

// NewResolver builds a resolver over the given cache. The fetch client skips
// TLS verification: previews are unauthenticated decoration and a broken cert
// on a linked shop page should not suppress the link itself.
func NewResolver(cache Cache) *Resolver {
	return &Resolver{
		cache: cache,
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // G402: best-effort preview fetch, see package doc
			},
		},
	}
}

// CacheKey derives the cache key for a URL.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the preview image URL for the given page URL, or ok=false
// when none is available. It never returns an error.
func (r *Resolver) Resolve(ctx context.Context, url string) (imageURL string, ok bool) {
	key := CacheKey(url)
	if e, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		telemetry.Inc(telemetry.PreviewCacheHits)
		return e.ImageURL, e.Found
	} else if err != nil {
		slog.Debug("preview cache read failed", slog.Any("err", err))
	}
	telemetry.Inc(telemetry.PreviewCacheMisses)

	img, found := r.fetch(ctx, url)
	entry := Entry{ImageURL: img, Found: found}
	ttl := PositiveTTL
	if !found {
		ttl = NegativeTTL
		telemetry.Inc(telemetry.PreviewFetchFailed)
	}
	if err := r.cache.Set(ctx, key, entry, ttl); err != nil {
		slog.Debug("preview cache write failed", slog.Any("err", err))
	}
	return img, found
}

func (r *Resolver) fetch(ctx context.Context, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Debug("preview fetch failed", slog.String("url", url), slog.Any("err", err))
		return "", false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	img := extractOGImage(resp.Body)
	return img, img != ""
}

// extractOGImage scans the document for <meta property="og:image" content="...">.
// The tokenizer is used instead of a full parse so malformed storefront HTML
// still yields the tag when present.
func extractOGImage(body io.Reader) string {
	z := html.NewTokenizer(body)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var property, content string
			for {
				k, v, more := z.TagAttr()
				switch string(k) {
				case "property":
					property = string(v)
				case "content":
					content = string(v)
				}
				if !more {
					break
				}
			}
			if property == "og:image" && content != "" {
				return content
			}
		}
	}
}
