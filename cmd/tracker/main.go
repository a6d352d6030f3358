package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/screwyprof/poolmembers/pkg/logger"
	"github.com/screwyprof/poolmembers/pkg/pgxdb"
	"github.com/screwyprof/poolmembers/pkg/sidecar"
	"github.com/screwyprof/poolmembers/pkg/viewbus"
	"github.com/screwyprof/poolmembers/tracker"
	"github.com/screwyprof/poolmembers/tracker/config"
	"github.com/screwyprof/poolmembers/tracker/store/pgxstore"
)

// These values are overridden at build time using -ldflags
var (
	version = "dev"
	date    = "unknown"
)

func main() {
	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "tracker",
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Pool members tracker starting",
		slog.String("version", version),
		slog.String("date", date),
		slog.String("sidecar", cfg.SidecarURL),
	)

	// Database connection
	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL, pgxdb.WithApplicationName("poolmembers-tracker"))
	if err != nil {
		log.ErrorContext(ctx, "Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	store, storeCloser := pgxstore.New(db)
	defer storeCloser()

	stored, err := store.Version(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read stored view version", slog.Any("error", err))
		os.Exit(1)
	}

	// Redis for the view bus
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.ErrorContext(ctx, "Failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	bus := viewbus.New(rdb)

	// Sidecar client
	httpClient := &http.Client{Timeout: cfg.HttpClientTimeout}
	api := sidecar.NewClient(httpClient, cfg.SidecarURL, sidecar.WithMaxConcurrency(cfg.LookupConcurrency))
	defer api.Close()

	svc := tracker.NewService(api,
		tracker.WithPageSize(cfg.PageSize),
		tracker.WithPollInterval(cfg.PollInterval),
		tracker.WithRetryInterval(cfg.RetryInterval),
		tracker.WithInitialVersion(stored),
		tracker.WithSinks(store, tracker.NewBusSink(bus)),
	)

	// Metrics
	registry := prometheus.NewRegistry()
	if err := errors.Join(
		registry.Register(collectors.NewGoCollector()),
		registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
		svc.RegisterMetrics(registry),
	); err != nil {
		log.ErrorContext(ctx, "Failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}
	metricsServer := startMetricsServer(ctx, log, cfg.MetricsAddr, registry)

	// Start service
	events, done := svc.Start(ctx)

	var fatal error
	subCloser := setupEventLogging(ctx, events, log, &fatal)

	<-done
	subCloser()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "Metrics server forced to shutdown", slog.Any("error", err))
	}

	if fatal != nil {
		log.ErrorContext(ctx, "Tracker stopped on a chain event it cannot decode", slog.Any("error", fatal))
		os.Exit(1)
	}
	log.InfoContext(ctx, "Tracker stopped gracefully")
}

func startMetricsServer(ctx context.Context, log *slog.Logger, addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.InfoContext(ctx, "Metrics server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Metrics server failed", slog.Any("error", err))
		}
	}()

	return server
}

// setupEventLogging configures event handlers using slog directly. A schema mismatch is
// stored in fatal; it is safe to read once the returned closer has returned.
func setupEventLogging(ctx context.Context, events <-chan tracker.Event, log *slog.Logger, fatal *error) func() {
	return tracker.NewSubscriber(events,
		tracker.OnStarted(func(event tracker.Started) {
			log.InfoContext(ctx, "Tracker started",
				slog.String("startedAt", event.StartedAt.Format(logger.BritishTimeFormat)),
				slog.Duration("pollInterval", event.PollInterval),
				slog.Uint64("pageSize", event.PageSize),
			)
		}),
		tracker.OnSnapshotLoaded(func(event tracker.SnapshotLoaded) {
			log.InfoContext(ctx, "Snapshot loaded",
				slog.Uint64("height", event.Height),
				slog.Int("pages", event.Pages),
				slog.Int("entries", event.Entries),
				slog.Int("skipped", event.Skipped),
				slog.Duration("duration", event.Duration),
			)
		}),
		tracker.OnSnapshotError(func(event tracker.SnapshotError) {
			log.ErrorContext(ctx, "Snapshot failed", slog.Any("error", event.Err))
		}),
		tracker.OnBlocksScanned(func(event tracker.BlocksScanned) {
			log.DebugContext(ctx, "Blocks scanned",
				slog.Uint64("from", event.From),
				slog.Uint64("to", event.To),
				slog.Int("joined", event.Joined),
			)
		}),
		tracker.OnWatchError(func(event tracker.WatchError) {
			log.ErrorContext(ctx, "Watching blocks failed", slog.Any("error", event.Err))
		}),
		tracker.OnLookupError(func(event tracker.LookupError) {
			log.ErrorContext(ctx, "Member lookup failed",
				slog.Uint64("height", event.Height),
				slog.Int("accounts", event.Accounts),
				slog.Any("error", event.Err),
			)
		}),
		tracker.OnMergeDropped(func(event tracker.MergeDropped) {
			log.WarnContext(ctx, "Merge dropped before the initial view",
				slog.Uint64("height", event.Height),
				slog.Int("members", event.Members),
			)
		}),
		tracker.OnViewPublished(func(event tracker.ViewPublished) {
			log.InfoContext(ctx, "View published",
				slog.Uint64("version", event.Version),
				slog.Uint64("height", event.Height),
				slog.String("reason", string(event.Reason)),
				slog.Int("pools", event.Pools),
				slog.Int("members", event.Members),
				slog.Int("touched", event.Touched),
			)
		}),
		tracker.OnSinkError(func(event tracker.SinkError) {
			log.ErrorContext(ctx, "Sink failed", slog.Uint64("version", event.Version), slog.Any("error", event.Err))
		}),
		tracker.OnSchemaMismatch(func(event tracker.SchemaMismatch) {
			*fatal = event.Err
			log.ErrorContext(ctx, "Chain event schema mismatch",
				slog.Uint64("height", event.Height),
				slog.Any("error", event.Err),
			)
		}),
		tracker.OnStopped(func(event tracker.Stopped) {
			log.InfoContext(ctx, "Tracker stopping", slog.String("reason", event.Reason.Error()))
		}),
	)
}
