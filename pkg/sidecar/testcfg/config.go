package testcfg

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for sidecar client acceptance tests
type Config struct {
	PageSize    uint64        `env:"SIDECAR_TEST_PAGE_SIZE" envDefault:"5"`
	HTTPTimeout time.Duration `env:"SIDECAR_TEST_HTTP_TIMEOUT" envDefault:"30s"`
	BaseURL     string        `env:"SIDECAR_TEST_BASE_URL" envDefault:"https://polkadot-public-sidecar.parity-chains.parity.io"`
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
