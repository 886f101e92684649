package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. The result
// is validated but client credentials are not checked; callers that need to
// sign users in call ValidateCredentials.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// 3. Apply env overrides
	applyEnv(cfg, env)

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.ListenAddr != nil {
		cfg.Server.ListenAddr = *cli.ListenAddr
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	cfg.Mail.PhotoDir = expandTilde(cfg.Mail.PhotoDir)
	cfg.Mail.Template = expandTilde(cfg.Mail.Template)
	cfg.History.DBPath = expandTilde(cfg.History.DBPath)

	// 5. Validate the final merged result
	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, cfgPath, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.ClientID != "" {
		cfg.OAuth.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.OAuth.ClientSecret = env.ClientSecret
	}

	if env.RedirectURL != "" {
		cfg.OAuth.RedirectURL = env.RedirectURL
	}

	if env.ListenAddr != "" {
		cfg.Server.ListenAddr = env.ListenAddr
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}
}
