package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes content to a temp config.toml and returns its path.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func strPtr(s string) *string { return &s }

func TestLoad_FullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[oauth]
client_id = "app-id"
client_secret = "app-secret"
tenant = "contoso.onmicrosoft.com"
redirect_url = "https://mailer.example/login/authorized"
scopes = ["User.Read", "Mail.Send"]

[graph]
base_url = "https://graph.microsoft.com/v1.0"
client_sku = "custom-sku"

[server]
listen_addr = "0.0.0.0:8080"
secure_cookies = true
pending_session_ttl = "2m"
max_sessions = 50

[mail]
upload_folder = "Mailer"
link_type = "edit"
save_to_sent_items = false
photo_dir = "/tmp/photos"

[history]
enabled = false

[logging]
log_level = "debug"
log_format = "json"

[network]
timeout = "5s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "app-id", cfg.OAuth.ClientID)
	assert.Equal(t, "contoso.onmicrosoft.com", cfg.OAuth.Tenant)
	assert.Equal(t, []string{"User.Read", "Mail.Send"}, cfg.OAuth.Scopes)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.Graph.BaseURL)
	assert.Equal(t, "custom-sku", cfg.Graph.ClientSKU)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.ListenAddr)
	assert.True(t, cfg.Server.SecureCookies)
	assert.Equal(t, "2m", cfg.Server.PendingSessionTTL)
	assert.Equal(t, 50, cfg.Server.MaxSessions)
	assert.Equal(t, defaultSessionMaxAge, cfg.Server.SessionMaxAge)
	assert.Equal(t, "Mailer", cfg.Mail.UploadFolder)
	assert.Equal(t, "edit", cfg.Mail.LinkType)
	assert.False(t, cfg.Mail.SaveToSentItems)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "5s", cfg.Network.Timeout)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[oauth]
client_id = "app-id"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "app-id", cfg.OAuth.ClientID)
	assert.Equal(t, defaultTenant, cfg.OAuth.Tenant)
	assert.Equal(t, defaultBaseURL, cfg.Graph.BaseURL)
	assert.Equal(t, defaultListenAddr, cfg.Server.ListenAddr)
	assert.True(t, cfg.Mail.SaveToSentItems)
	assert.Equal(t, defaultScopes, cfg.OAuth.Scopes)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeTestConfig(t, `
[oauth]
client_idd = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "client_idd" in [oauth]`)
	assert.Contains(t, err.Error(), `did you mean "client_id"`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, `
[loging]
log_level = "debug"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown section "loging"`)
	assert.Contains(t, err.Error(), `did you mean "logging"`)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `[oauth`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parsing")
}

func TestLoad_InvalidValue(t *testing.T) {
	path := writeTestConfig(t, `
[logging]
log_level = "verbose"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[oauth]
client_id = "file-id"
client_secret = "file-secret"

[server]
listen_addr = "127.0.0.1:6000"

[logging]
log_level = "warn"
`)

	env := EnvOverrides{
		ClientID:   "env-id",
		ListenAddr: "127.0.0.1:7000",
		LogLevel:   "error",
	}
	cli := CLIOverrides{
		ConfigPath: path,
		LogLevel:   strPtr("debug"),
	}

	cfg, gotPath, err := Resolve(env, cli)
	require.NoError(t, err)

	assert.Equal(t, path, gotPath)
	assert.Equal(t, "env-id", cfg.OAuth.ClientID, "env beats file")
	assert.Equal(t, "file-secret", cfg.OAuth.ClientSecret, "file kept when env unset")
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.ListenAddr, "env beats file")
	assert.Equal(t, "debug", cfg.Logging.LogLevel, "CLI beats env")
}

func TestResolve_EnvConfigPath(t *testing.T) {
	path := writeTestConfig(t, `
[graph]
client_sku = "from-env-path"
`)

	cfg, gotPath, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)

	assert.Equal(t, path, gotPath)
	assert.Equal(t, "from-env-path", cfg.Graph.ClientSKU)
}

func TestResolve_CLIListenAddr(t *testing.T) {
	cfg, _, err := Resolve(
		EnvOverrides{ListenAddr: "127.0.0.1:7000"},
		CLIOverrides{
			ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
			ListenAddr: strPtr(":9000"),
		},
	)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
}

func TestResolve_InvalidOverride(t *testing.T) {
	_, _, err := Resolve(
		EnvOverrides{LogLevel: "loud"},
		CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.log_level")
}

func TestResolve_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeTestConfig(t, `
[mail]
photo_dir = "~/photos"
`)

	cfg, _, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "photos"), cfg.Mail.PhotoDir)
}
