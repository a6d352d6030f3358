package migratortest

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for pgtestdb
	"github.com/peterldowns/pgtestdb"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/poolmembers/migrator"
)

// serverConfig locates the Postgres server test databases are created on
type serverConfig struct {
	User     string `env:"PGTESTDB_USER" envDefault:"poolmembers"`
	Password string `env:"PGTESTDB_PASSWORD" envDefault:"poolmembers"`
	Host     string `env:"PGTESTDB_HOST" envDefault:"localhost"`
	Port     string `env:"PGTESTDB_PORT" envDefault:"5432"`
	Options  string `env:"PGTESTDB_OPTIONS" envDefault:"sslmode=disable"`
}

// CreateTestDatabase creates a test database with schema migrations applied.
// Returns the connection pool ready for use.
func CreateTestDatabase(t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	return createTestDatabaseWithMigrator(t, migrator.NewSchemaMigrator(migrationsDir))
}

// CreateSeededTestDatabase creates a test database with migrations and a demo view of
// pools × membersPerPool members. Returns the connection pool ready for use.
func CreateSeededTestDatabase(t *testing.T, migrationsDir string, pools, membersPerPool int, seedTimeout time.Duration) *pgxpool.Pool {
	t.Helper()

	migratorInstance := migrator.NewSeededMigrator(migrationsDir, pools, membersPerPool, seedTimeout)
	return createTestDatabaseWithMigrator(t, migratorInstance)
}

// createTestDatabaseWithMigrator creates a test database using the provided migrator
func createTestDatabaseWithMigrator(t *testing.T, migratorInstance pgtestdb.Migrator) *pgxpool.Pool {
	t.Helper()

	config := createTestDatabaseConfig(t)

	// Create test database and get its config
	dbConfig := pgtestdb.Custom(t, config, migratorInstance)

	// Connect to the test database using test context for proper lifecycle management
	pool, err := pgxpool.New(t.Context(), dbConfig.URL())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// Log the database URL for debugging
	t.Logf("testdbconf: %s", dbConfig.URL())

	return pool
}

// createTestDatabaseConfig creates the pgtestdb configuration from PGTESTDB_* variables
func createTestDatabaseConfig(t *testing.T) pgtestdb.Config {
	t.Helper()

	server, err := env.ParseAs[serverConfig]()
	require.NoError(t, err)

	return pgtestdb.Config{
		DriverName: "pgx",
		User:       server.User,
		Password:   server.Password,
		Host:       server.Host,
		Port:       server.Port,
		Options:    server.Options,
	}
}
