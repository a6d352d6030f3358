package testcfg

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for tracker acceptance tests
// NOTE: All values are test-optimized (smaller, faster) compared to production
type Config struct {
	PageSize          uint64        `env:"TRACKER_TEST_PAGE_SIZE" envDefault:"200"`       // vs 1000 in production
	PollInterval      time.Duration `env:"TRACKER_TEST_POLL_INTERVAL" envDefault:"500ms"` // vs 6s in production
	HttpClientTimeout time.Duration `env:"TRACKER_TEST_HTTP_CLIENT_TIMEOUT" envDefault:"30s"`
	SidecarURL        string        `env:"TRACKER_TEST_SIDECAR_URL" envDefault:"https://polkadot-public-sidecar.parity-chains.parity.io"`

	// Test execution timeouts
	SnapshotTimeout time.Duration `env:"TRACKER_TEST_SNAPSHOT_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"TRACKER_TEST_SHUTDOWN_TIMEOUT" envDefault:"2s"`
}

// parseConfig wraps env.Parse to return (Config, error) for use with env.Must
func parseConfig() (Config, error) {
	var cfg Config
	err := env.Parse(&cfg)
	return cfg, err
}

// New loads test configuration from environment variables
func New() Config {
	return env.Must(parseConfig())
}
