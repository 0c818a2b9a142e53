package contentsync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tekflox/aiflowx-relay/botapi"
	"github.com/tekflox/aiflowx-relay/db"
	"github.com/tekflox/aiflowx-relay/telemetry"
)

// DefaultMinGap is the recency gate: scheduled runs are skipped when fewer
// hours than this have elapsed since the last recorded success. Manual runs
// bypass the gate.
const DefaultMinGap = 20 * time.Hour

// Syncer runs content sync rounds against the message store.
type Syncer struct {
	DB        *sql.DB
	Client    *botapi.Client
	Extractor Extractor
	MinGap    time.Duration

	now func() time.Time
}

func NewSyncer(dbx *sql.DB, client *botapi.Client, ex Extractor, minGap time.Duration) *Syncer {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	return &Syncer{DB: dbx, Client: client, Extractor: ex, MinGap: minGap, now: time.Now}
}

// Run extracts all eligible content and ships it in one batch. On success the
// completion time is recorded for the scheduler's recency gate and for the
// status endpoint. Returns the batch size.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	telemetry.Inc(telemetry.SyncRuns)
	var n int
	var runErr error
	telemetry.TimeFunc(telemetry.SyncDuration, func() {
		n, runErr = s.run(ctx)
	})
	if runErr != nil {
		telemetry.Inc(telemetry.SyncFailures)
		return 0, runErr
	}
	telemetry.SetSyncBatchSize(n)
	return n, nil
}

func (s *Syncer) run(ctx context.Context) (int, error) {
	batch, err := s.BuildBatch(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.Client.SyncContent(ctx, batch); err != nil {
		return 0, fmt.Errorf("push sync batch: %w", err)
	}
	if err := db.SetLastSync(ctx, s.DB, s.now()); err != nil {
		return 0, fmt.Errorf("record sync completion: %w", err)
	}
	slog.Info("content sync completed", slog.Int("records", len(batch)))
	return len(batch), nil
}

// BuildBatch extracts and serializes every eligible product and post.
func (s *Syncer) BuildBatch(ctx context.Context) ([]botapi.SyncRecord, error) {
	products, err := s.Extractor.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract products: %w", err)
	}
	posts, err := s.Extractor.Posts(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract posts: %w", err)
	}

	batch := make([]botapi.SyncRecord, 0, len(products)+len(posts))
	for _, p := range products {
		if !p.Eligible() {
			continue
		}
		rec, err := BuildProductRecord(p)
		if err != nil {
			return nil, err
		}
		batch = append(batch, rec)
	}
	for _, p := range posts {
		if !p.Eligible() {
			continue
		}
		rec, err := BuildPostRecord(p)
		if err != nil {
			return nil, err
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// RunGated runs a sync unless the last success is more recent than MinGap.
// Returns skipped=true (and no error) when the gate held the run back.
func (s *Syncer) RunGated(ctx context.Context) (n int, skipped bool, err error) {
	last, err := db.GetLastSync(ctx, s.DB)
	if err != nil {
		return 0, false, fmt.Errorf("read last sync: %w", err)
	}
	if !last.IsZero() && s.now().UTC().Sub(last) < s.MinGap {
		telemetry.Inc(telemetry.SyncSkipped)
		slog.Debug("content sync skipped by recency gate",
			slog.Time("last_sync", last), slog.Duration("min_gap", s.MinGap))
		return 0, true, nil
	}
	n, err = s.Run(ctx)
	return n, false, err
}

// StartSyncJob runs the cron-gated sync loop until ctx is cancelled. The
// schedule is a cron expression (gronx syntax, @daily and friends accepted),
// evaluated once a minute; the recency gate makes overlapping triggers a
// harmless duplicate at worst.
func StartSyncJob(ctx context.Context, s *Syncer, schedule string) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		slog.Error("invalid sync schedule, job disabled", slog.String("schedule", schedule))
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	slog.Info("content sync job started", slog.String("schedule", schedule))
	for {
		select {
		case <-ctx.Done():
			slog.Info("content sync job stopped")
			return
		case <-ticker.C:
			due, err := g.IsDue(schedule, time.Now())
			if err != nil || !due {
				continue
			}
			if _, skipped, err := s.RunGated(ctx); err != nil {
				slog.Error("content sync failed", slog.Any("err", err))
			} else if skipped {
				slog.Info("content sync skipped, last run too recent")
			}
		}
	}
}
