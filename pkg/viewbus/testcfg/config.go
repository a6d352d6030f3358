package testcfg

import (
	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for viewbus acceptance tests
type Config struct {
	RedisAddr string `env:"VIEWBUS_TEST_REDIS_ADDR" envDefault:"redis:6379"`
	RedisDB   int    `env:"VIEWBUS_TEST_REDIS_DB" envDefault:"15"`
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
