package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/screwyprof/poolmembers/migrator"
	"github.com/screwyprof/poolmembers/migrator/config"
	"github.com/screwyprof/poolmembers/pkg/logger"
	"github.com/screwyprof/poolmembers/pkg/pgxdb"
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
		Service:          "migrator",
	})
	slog.SetDefault(log)

	log.Info("Starting database migrator",
		slog.String("migrationsDir", cfg.MigrationsDir),
		slog.Int("demoPools", cfg.DemoPools),
		slog.String("version", version),
		slog.String("date", date),
	)

	// Cancel on SIGINT/SIGTERM or when the timeout elapses
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(baseCtx, cfg.OperationTimeout)
	defer cancel()

	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL, pgxdb.WithApplicationName("poolmembers-migrator"))
	if err != nil {
		log.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	log.Info("Applying database migrations")
	if err := migrator.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
		log.Error("Failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("Database migrations applied successfully")

	// Demo data for local development only; the tracker replaces it on its first snapshot
	if cfg.DemoPools > 0 {
		log.Info("Seeding demo view",
			slog.Int("pools", cfg.DemoPools),
			slog.Int("membersPerPool", cfg.DemoMembersPerPool),
		)
		if err := migrator.SeedDemoView(ctx, db, cfg.DemoPools, cfg.DemoMembersPerPool); err != nil {
			log.Error("Failed to seed demo view", slog.Any("error", err))
			os.Exit(1)
		}
	}

	log.Info("Database migrator completed successfully")
}
