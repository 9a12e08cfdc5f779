// Package config loads the terminal client's settings from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces client variables, e.g. NOVAP2P_GATEWAY_URL.
const Prefix = "NOVAP2P"

type Config struct {
	GatewayURL     string        `envconfig:"GATEWAY_URL" default:"http://localhost:8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	cfg.GatewayURL = strings.TrimSuffix(cfg.GatewayURL, "/")
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("config: NOVAP2P_REQUEST_TIMEOUT must be positive")
	}
	return &cfg, nil
}
