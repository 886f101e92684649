package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig       = "GRAPH_MAILER_CONFIG"
	EnvClientID     = "GRAPH_MAILER_CLIENT_ID"
	EnvClientSecret = "GRAPH_MAILER_CLIENT_SECRET"
	EnvRedirectURL  = "GRAPH_MAILER_REDIRECT_URL"
	EnvListenAddr   = "GRAPH_MAILER_LISTEN_ADDR"
	EnvLogLevel     = "GRAPH_MAILER_LOG_LEVEL"
	EnvAccessToken  = "GRAPH_MAILER_ACCESS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
// AccessToken is not configuration: it is consumed by the send command and
// never merged into Config.
type EnvOverrides struct {
	ConfigPath   string `env:"GRAPH_MAILER_CONFIG"`
	ClientID     string `env:"GRAPH_MAILER_CLIENT_ID"`
	ClientSecret string `env:"GRAPH_MAILER_CLIENT_SECRET"`
	RedirectURL  string `env:"GRAPH_MAILER_REDIRECT_URL"`
	ListenAddr   string `env:"GRAPH_MAILER_LISTEN_ADDR"`
	LogLevel     string `env:"GRAPH_MAILER_LOG_LEVEL"`
	AccessToken  string `env:"GRAPH_MAILER_ACCESS_TOKEN"`
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set are not overwritten. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() (EnvOverrides, error) {
	var out EnvOverrides
	if err := env.Parse(&out); err != nil {
		return EnvOverrides{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	return out, nil
}
