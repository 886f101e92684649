// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for graph-mailer. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags). A .env
// file next to the working directory is loaded into the environment before
// the environment layer is read, so client secrets can live outside the
// config file.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	OAuth   OAuthConfig   `toml:"oauth"`
	Graph   GraphConfig   `toml:"graph"`
	Server  ServerConfig  `toml:"server"`
	Mail    MailConfig    `toml:"mail"`
	History HistoryConfig `toml:"history"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// OAuthConfig is the application registration used for sign-in.
// AuthorityURL overrides the login.microsoftonline.com host, for sovereign
// clouds or a local test identity provider.
type OAuthConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Tenant       string   `toml:"tenant"`
	RedirectURL  string   `toml:"redirect_url"`
	Scopes       []string `toml:"scopes"`
	AuthorityURL string   `toml:"authority_url"`
}

// GraphConfig selects the Graph endpoint and the client identifier sent in
// the SdkVersion and x-client-SKU headers.
type GraphConfig struct {
	BaseURL   string `toml:"base_url"`
	ClientSKU string `toml:"client_sku"`
}

// ServerConfig controls the web front end. Sessions that never finish
// signing in are dropped after PendingSessionTTL; every session is dropped
// after SessionMaxAge. MaxSessions caps the in-memory store.
type ServerConfig struct {
	ListenAddr        string `toml:"listen_addr"`
	SecureCookies     bool   `toml:"secure_cookies"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
	SessionMaxAge     string `toml:"session_max_age"`
	PendingSessionTTL string `toml:"pending_session_ttl"`
	MaxSessions       int    `toml:"max_sessions"`
}

// MailConfig controls how the welcome mail is assembled. An empty Template
// uses the built-in email template.
type MailConfig struct {
	Template        string `toml:"template"`
	UploadFolder    string `toml:"upload_folder"`
	LinkType        string `toml:"link_type"`
	SaveToSentItems bool   `toml:"save_to_sent_items"`
	PhotoDir        string `toml:"photo_dir"`
}

// HistoryConfig controls the local send ledger.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the shared HTTP client.
type NetworkConfig struct {
	Timeout string `toml:"timeout"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ListenAddr *string // --listen flag
	LogLevel   *string // derived from --verbose / --debug / --quiet
}
