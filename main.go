// Command aiflowx-relay is the entrypoint for the chat relay service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the scheduled content sync job.
//   - Exposes the HTTP API: widget chat relay/bootstrap, health, status,
//     metrics, and admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM, flipping the tenant's activation
// status off upstream on the way out.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tekflox/aiflowx-relay/botapi"
	"github.com/tekflox/aiflowx-relay/config"
	"github.com/tekflox/aiflowx-relay/contentsync"
	"github.com/tekflox/aiflowx-relay/crypto"
	"github.com/tekflox/aiflowx-relay/db"
	"github.com/tekflox/aiflowx-relay/preview"
	"github.com/tekflox/aiflowx-relay/server"
	"github.com/tekflox/aiflowx-relay/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if cfg.ProfileUUID == "" {
		slog.Warn("PROFILE_UUID not set - chat relay disabled until a tenant profile is configured")
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("aiflowx-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Nonce secret: pinned via env for multi-instance deployments, otherwise
	// generated per process.
	secret := cfg.NonceSecret
	if secret == "" {
		secret, err = crypto.RandomSecret()
		if err != nil {
			slog.Error("nonce secret generation failed", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Warn("NONCE_SECRET not set, using a process-local secret; widget sessions won't survive restarts")
	}
	signer, err := crypto.NewSigner(secret)
	if err != nil {
		slog.Error("nonce signer init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot := &botapi.Client{
		Host:        cfg.APIHost,
		Profile:     cfg.ProfileUUID,
		ChatTimeout: cfg.ChatTimeout,
		SyncTimeout: cfg.SyncTimeout,
	}

	// Best-effort: tell the message store this installation is live.
	if cfg.ProfileUUID != "" {
		actCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := bot.SetActivated(actCtx, true); err != nil {
			slog.Warn("activation toggle failed", slog.Any("err", err))
		}
		cancel()
	}

	syncer := contentsync.NewSyncer(database, bot, contentsync.NewSQLExtractor(database), cfg.SyncMinGap)
	go contentsync.StartSyncJob(ctx, syncer, cfg.SyncSchedule)

	deps := server.Deps{
		DB:       database,
		Cfg:      cfg,
		Bot:      bot,
		Signer:   signer,
		Resolver: preview.NewResolver(&preview.PGCache{DB: database}),
		Syncer:   syncer,
		SiteHost: cfg.SiteHost,
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")

	if cfg.ProfileUUID != "" {
		deactCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := bot.SetActivated(deactCtx, false); err != nil {
			slog.Warn("deactivation toggle failed", slog.Any("err", err))
		}
		cancel()
	}
}
