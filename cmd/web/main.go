package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/screwyprof/poolmembers/pkg/logger"
	"github.com/screwyprof/poolmembers/pkg/pgxdb"
	"github.com/screwyprof/poolmembers/pkg/viewbus"
	"github.com/screwyprof/poolmembers/web/config"
	"github.com/screwyprof/poolmembers/web/handler"
	"github.com/screwyprof/poolmembers/web/store/pgxstore"
)

var (
	version = "dev"
	date    = "unknown"
)

func main() {
	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "web",
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Pool members Web API starting",
		slog.String("version", version),
		slog.String("date", date),
	)

	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL,
		pgxdb.WithMaxConns(cfg.DatabaseMaxConns),
		pgxdb.WithApplicationName("poolmembers-web"),
	)
	if err != nil {
		log.ErrorContext(ctx, "Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}

	store, storeCloser := pgxstore.New(db)
	defer storeCloser()

	mux := http.NewServeMux()
	handler.NewPools(store).AddRoutes(mux)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		opts := []handler.FeedOption{
			handler.WithPingInterval(cfg.FeedPingInterval),
			handler.WithPongWait(cfg.FeedPongWait),
			handler.WithFeedLogger(log),
		}
		if cfg.FeedAnyOrigin {
			opts = append(opts, handler.WithCheckOrigin(func(*http.Request) bool { return true }))
		}
		handler.NewMembersFeed(viewbus.New(rdb), opts...).AddRoutes(mux)
	} else {
		log.WarnContext(ctx, "WEB_REDIS_ADDR is empty, members feed disabled")
	}

	addr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:    addr,
		Handler: logger.NewMiddleware(log)(mux),
		// websocket connections are hijacked and outlive Shutdown; they end with this context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.InfoContext(ctx, "Server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Server failed to start", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	log.InfoContext(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "Server forced to shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	log.InfoContext(ctx, "Server exited gracefully")
}
