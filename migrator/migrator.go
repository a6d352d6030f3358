package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/sqlmigrator"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/pkg/pgxdb"
	"github.com/screwyprof/poolmembers/tracker"
	"github.com/screwyprof/poolmembers/tracker/store/pgxstore"
)

// Migration constants
const (
	migrationsTableName = "schema_migrations"
	schemaHashPrefix    = "schema_only_"
	seededHashPrefix    = "seeded_demo_"
)

// DemoHeight is the block height recorded for the seeded demo view
const DemoHeight = uint64(1_000_000)

// Migration-related errors
var (
	ErrMigrationExecution = errors.New("migration execution failed")
	ErrMigrationHash      = errors.New("migration hash failed")
	ErrSeedFailed         = errors.New("demo seeding failed")
)

// SchemaMigrator applies only database schema migrations
// Used for production and tests that need schema-only setup
type SchemaMigrator struct {
	migrationsDir string
}

// NewSchemaMigrator creates a migrator that applies schema migrations only
func NewSchemaMigrator(migrationsDir string) *SchemaMigrator {
	return &SchemaMigrator{
		migrationsDir: migrationsDir,
	}
}

func (m *SchemaMigrator) Hash() (string, error) {
	baseHash, err := migrationsHash(m.migrationsDir)
	if err != nil {
		return "", err
	}
	return schemaHashPrefix + baseHash, nil
}

func (m *SchemaMigrator) Migrate(_ context.Context, db *sql.DB, _ pgtestdb.Config) error {
	return applyMigrations(db, m.migrationsDir)
}

// SeededMigrator applies schema migrations and stores a generated demo view
// Used for web API tests that need data to page through
type SeededMigrator struct {
	migrationsDir  string
	pools          int
	membersPerPool int
	seedTimeout    time.Duration
}

// NewSeededMigrator creates a migrator that applies schema + seeds a view of
// pools × membersPerPool members
func NewSeededMigrator(migrationsDir string, pools, membersPerPool int, seedTimeout time.Duration) *SeededMigrator {
	return &SeededMigrator{
		migrationsDir:  migrationsDir,
		pools:          pools,
		membersPerPool: membersPerPool,
		seedTimeout:    seedTimeout,
	}
}

func (m *SeededMigrator) Hash() (string, error) {
	baseHash, err := migrationsHash(m.migrationsDir)
	if err != nil {
		return "", err
	}
	return seededHashPrefix + baseHash + "_" + strconv.Itoa(m.pools) + "_" + strconv.Itoa(m.membersPerPool), nil
}

func (m *SeededMigrator) Migrate(ctx context.Context, db *sql.DB, conf pgtestdb.Config) error {
	if err := applyMigrations(db, m.migrationsDir); err != nil {
		return err
	}
	return m.seedDemoData(ctx, conf.URL())
}

// seedDemoData stores the demo view in the template database
func (m *SeededMigrator) seedDemoData(ctx context.Context, dbURL string) error {
	slog.InfoContext(ctx, "🌱 Seeding demo database with a membership view",
		"pools", m.pools,
		"membersPerPool", m.membersPerPool,
		"timeout", m.seedTimeout)

	seedCtx, cancel := context.WithTimeout(ctx, m.seedTimeout)
	defer cancel()

	pool, err := pgxdb.NewConnection(seedCtx, dbURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := SeedDemoView(seedCtx, pool, m.pools, m.membersPerPool); err != nil {
		return err
	}

	slog.InfoContext(seedCtx, "✅ Demo database seeding completed successfully")
	return nil
}

// SeedDemoView stores DemoView(pools, membersPerPool) as version 1 of the view
func SeedDemoView(ctx context.Context, pool *pgxpool.Pool, pools, membersPerPool int) error {
	store, _ := pgxstore.New(pool)

	view := DemoView(pools, membersPerPool)
	err := store.Publish(ctx, tracker.Publication{
		Version:     1,
		Height:      DemoHeight,
		Reason:      tracker.ReasonSnapshot,
		View:        view,
		Touched:     view.Pools(),
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSeedFailed, err)
	}
	return nil
}

// DemoView builds a deterministic view with pool ids 1..pools. Member i of pool p has the
// public key with p in byte 0 and i in bytes 1-2, rendered with the generic prefix.
func DemoView(pools, membersPerPool int) members.View {
	entries := make([]members.Entry, 0, pools*membersPerPool)
	for p := 1; p <= pools; p++ {
		for i := range membersPerPool {
			var key members.PublicKey
			key[0] = byte(p)
			key[1] = byte(i >> 8)
			key[2] = byte(i)

			entries = append(entries, members.Entry{
				Key: members.EncodeAccountID(members.GenericPrefix, key),
				Value: &members.Info{
					PoolID:                    members.PoolID(p),
					Points:                    strconv.Itoa((i + 1) * 1_000_000_000_000),
					LastRecordedRewardCounter: "0",
				},
			})
		}
	}
	return members.BuildInitialView(entries)
}

// ApplyMigrations applies database migrations using sql-migrate with the provided pgx pool
func ApplyMigrations(pool *pgxpool.Pool, migrationsDir string) error {
	// Create sql.DB from the pgx pool for sql-migrate
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return applyMigrations(db, migrationsDir)
}

func migrationsHash(migrationsDir string) (string, error) {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	hash, err := sqlmigrator.New(source, migrationSet).Hash()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMigrationHash, migrationsDir, err)
	}
	return hash, nil
}

// applyMigrations applies database migrations using sql-migrate
func applyMigrations(db *sql.DB, migrationsDir string) error {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	_, err := migrationSet.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationExecution, err)
	}
	return nil
}
