// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RelayRequests       prometheus.Counter
	RelayUpstreamErrors prometheus.Counter
	RelayNoContent      prometheus.Counter
	RelayRejected       prometheus.Counter
	PreviewCacheHits    prometheus.Counter
	PreviewCacheMisses  prometheus.Counter
	PreviewFetchFailed  prometheus.Counter
	SyncRuns            prometheus.Counter
	SyncFailures        prometheus.Counter
	SyncSkipped         prometheus.Counter

	// Histograms (seconds)
	RelayUpstreamDuration prometheus.Observer
	SyncDuration          prometheus.Observer

	// Gauges
	SyncBatchGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RelayRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_requests_total", Help: "Number of chat relay requests received"})
		RelayUpstreamErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_upstream_errors_total", Help: "Number of relay requests failed by upstream transport or malformed payload"})
		RelayNoContent = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_no_content_total", Help: "Number of relay requests answered with the idle (no new content) signal"})
		RelayRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_rejected_total", Help: "Number of relay requests rejected before reaching upstream (nonce, method, config)"})
		PreviewCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "preview_cache_hits_total", Help: "Number of link preview lookups served from cache"})
		PreviewCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "preview_cache_misses_total", Help: "Number of link preview lookups requiring an upstream fetch"})
		PreviewFetchFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "preview_fetch_failed_total", Help: "Number of link preview fetches that failed or found no image"})
		SyncRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "content_sync_runs_total", Help: "Number of content sync runs attempted"})
		SyncFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "content_sync_failures_total", Help: "Number of content sync runs failed"})
		SyncSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "content_sync_skipped_total", Help: "Number of scheduled sync runs skipped by the recency gate"})
		RelayUpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_upstream_duration_seconds", Help: "Upstream bot API call duration seconds", Buckets: prometheus.DefBuckets})
		SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "content_sync_duration_seconds", Help: "Content sync run duration seconds", Buckets: prometheus.DefBuckets})
		SyncBatchGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "content_sync_batch_size", Help: "Number of records in the most recent sync batch"})
	})
}

// Inc bumps a counter if registered (Init may be skipped in unit tests).
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetSyncBatchSize records the record count of the latest sync batch.
func SetSyncBatchSize(n int) {
	if SyncBatchGauge != nil {
		SyncBatchGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
