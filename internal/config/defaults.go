package config

import "path/filepath"

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultTenant          = "common"
	defaultRedirectURL     = "http://localhost:5000/login/authorized"
	defaultBaseURL         = "https://graph.microsoft.com/beta"
	defaultClientSKU       = "graph-mailer"
	defaultListenAddr      = "127.0.0.1:5000"
	defaultShutdownTimeout = "10s"
	defaultSessionMaxAge   = "8h"
	defaultPendingTTL      = "10m"
	defaultMaxSessions     = 10000
	defaultLinkType        = "view"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultTimeout         = "30s"
)

// defaultScopes mirrors graph.DefaultScopes; config does not import graph.
var defaultScopes = []string{"User.Read", "Mail.Send", "Files.ReadWrite"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		OAuth: OAuthConfig{
			Tenant:      defaultTenant,
			RedirectURL: defaultRedirectURL,
			Scopes:      append([]string(nil), defaultScopes...),
		},
		Graph: GraphConfig{
			BaseURL:   defaultBaseURL,
			ClientSKU: defaultClientSKU,
		},
		Server: ServerConfig{
			ListenAddr:      defaultListenAddr,
			ShutdownTimeout:   defaultShutdownTimeout,
			SessionMaxAge:     defaultSessionMaxAge,
			PendingSessionTTL: defaultPendingTTL,
			MaxSessions:       defaultMaxSessions,
		},
		Mail: MailConfig{
			LinkType:        defaultLinkType,
			SaveToSentItems: true,
			PhotoDir:        defaultPhotoDir(),
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  defaultHistoryPath(),
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			Timeout: defaultTimeout,
		},
	}
}

// defaultPhotoDir is where fetched profile photos are cached.
func defaultPhotoDir() string {
	dir := DefaultCacheDir()
	if dir == "" {
		return "photos"
	}

	return filepath.Join(dir, "photos")
}

// defaultHistoryPath is the send ledger database path.
func defaultHistoryPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return "history.db"
	}

	return filepath.Join(dir, "history.db")
}
