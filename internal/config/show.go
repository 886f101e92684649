package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secret values in rendered output.
const redacted = "********"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command. The client
// secret is never printed.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	renderOAuthSection(ew, &cfg.OAuth)

	ew.printf("[graph]\n")
	ew.printf("  base_url      = %q\n", cfg.Graph.BaseURL)
	ew.printf("  client_sku    = %q\n\n", cfg.Graph.ClientSKU)

	ew.printf("[server]\n")
	ew.printf("  listen_addr         = %q\n", cfg.Server.ListenAddr)
	ew.printf("  secure_cookies      = %t\n", cfg.Server.SecureCookies)
	ew.printf("  shutdown_timeout    = %q\n", cfg.Server.ShutdownTimeout)
	ew.printf("  session_max_age     = %q\n", cfg.Server.SessionMaxAge)
	ew.printf("  pending_session_ttl = %q\n", cfg.Server.PendingSessionTTL)
	ew.printf("  max_sessions        = %d\n\n", cfg.Server.MaxSessions)

	renderMailSection(ew, &cfg.Mail)

	ew.printf("[history]\n")
	ew.printf("  enabled = %t\n", cfg.History.Enabled)
	ew.printf("  db_path = %q\n\n", cfg.History.DBPath)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", cfg.Logging.LogFormat)

	ew.printf("[network]\n")
	ew.printf("  timeout = %q\n", cfg.Network.Timeout)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderOAuthSection(ew *errWriter, o *OAuthConfig) {
	secret := ""
	if o.ClientSecret != "" {
		secret = redacted
	}

	ew.printf("[oauth]\n")
	ew.printf("  client_id     = %q\n", o.ClientID)
	ew.printf("  client_secret = %q\n", secret)
	ew.printf("  tenant        = %q\n", o.Tenant)
	ew.printf("  redirect_url  = %q\n", o.RedirectURL)
	ew.printf("  scopes        = [%s]\n", joinQuoted(o.Scopes))

	if o.AuthorityURL != "" {
		ew.printf("  authority_url = %q\n", o.AuthorityURL)
	}

	ew.printf("\n")
}

func renderMailSection(ew *errWriter, m *MailConfig) {
	ew.printf("[mail]\n")

	if m.Template != "" {
		ew.printf("  template           = %q\n", m.Template)
	}

	ew.printf("  upload_folder      = %q\n", m.UploadFolder)
	ew.printf("  link_type          = %q\n", m.LinkType)
	ew.printf("  save_to_sent_items = %t\n", m.SaveToSentItems)
	ew.printf("  photo_dir          = %q\n\n", m.PhotoDir)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
