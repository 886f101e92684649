package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minTimeout         = 1 * time.Second
	minShutdownTimeout = 1 * time.Second
	minSessionTTL      = 1 * time.Minute
)

// credentialPlaceholder marks a value copied from the sample config that
// was never filled in.
const credentialPlaceholder = "ENTER_YOUR"

// ErrMissingCredentials is returned by ValidateCredentials.
var ErrMissingCredentials = errors.New("config: application credentials not configured")

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateOAuth(&cfg.OAuth)...)
	errs = append(errs, validateGraph(&cfg.Graph)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateMail(&cfg.Mail)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateCredentials checks that the client ID and secret are set and are
// not sample placeholders. Only commands that run the sign-in flow need them.
func ValidateCredentials(o *OAuthConfig) error {
	var errs []error

	for _, f := range []struct{ name, value string }{
		{"client_id", o.ClientID},
		{"client_secret", o.ClientSecret},
	} {
		v := strings.TrimSpace(f.value)

		switch {
		case v == "":
			errs = append(errs, fmt.Errorf("%w: oauth.%s is empty", ErrMissingCredentials, f.name))
		case strings.Contains(strings.ToUpper(v), credentialPlaceholder):
			errs = append(errs, fmt.Errorf("%w: oauth.%s still holds a placeholder", ErrMissingCredentials, f.name))
		}
	}

	return errors.Join(errs...)
}

func validateOAuth(o *OAuthConfig) []error {
	var errs []error

	if o.Tenant == "" {
		errs = append(errs, errors.New("oauth.tenant: must not be empty"))
	}

	errs = append(errs, validateAbsoluteURL("oauth.redirect_url", o.RedirectURL)...)

	if o.AuthorityURL != "" {
		errs = append(errs, validateAbsoluteURL("oauth.authority_url", o.AuthorityURL)...)
	}

	for _, s := range o.Scopes {
		if strings.TrimSpace(s) == "" || strings.ContainsAny(s, " \t") {
			errs = append(errs, fmt.Errorf("oauth.scopes: invalid scope %q", s))
		}
	}

	return errs
}

func validateGraph(g *GraphConfig) []error {
	var errs []error

	errs = append(errs, validateAbsoluteURL("graph.base_url", g.BaseURL)...)

	if strings.HasSuffix(g.BaseURL, "/") {
		errs = append(errs, fmt.Errorf("graph.base_url: must not end with /, got %q", g.BaseURL))
	}

	if g.ClientSKU == "" {
		errs = append(errs, errors.New("graph.client_sku: must not be empty"))
	}

	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("server.listen_addr: %w", err))
	}

	errs = append(errs, validateDurationMin("server.shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)
	errs = append(errs, validateDurationMin("server.session_max_age", s.SessionMaxAge, minSessionTTL)...)
	errs = append(errs, validateDurationMin("server.pending_session_ttl", s.PendingSessionTTL, minSessionTTL)...)

	if s.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("server.max_sessions: must be >= 1, got %d", s.MaxSessions))
	}

	return errs
}

var validLinkTypes = map[string]bool{
	"view":  true,
	"edit":  true,
	"embed": true,
}

func validateMail(m *MailConfig) []error {
	var errs []error

	if !validLinkTypes[m.LinkType] {
		errs = append(errs, fmt.Errorf("mail.link_type: must be one of view, edit, embed; got %q", m.LinkType))
	}

	if m.PhotoDir == "" {
		errs = append(errs, errors.New("mail.photo_dir: must not be empty"))
	}

	return errs
}

func validateHistory(h *HistoryConfig) []error {
	if h.Enabled && h.DBPath == "" {
		return []error{errors.New("history.db_path: must not be empty when history is enabled")}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	return validateDurationMin("network.timeout", n.Timeout, minTimeout)
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateAbsoluteURL(field, value string) []error {
	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, value)}
	}

	return nil
}

// Duration parses a field already checked by Validate. Invalid input yields
// fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return d
}
