package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// DefaultScopes are the delegated permissions the mail pipeline needs:
// read the profile and photo, send mail, and write to the user's drive.
var DefaultScopes = []string{
	"User.Read",
	"Mail.Send",
	"Files.ReadWrite",
}

// DefaultTenant is the multi-tenant authority segment (work, school, and
// personal accounts).
const DefaultTenant = "common"

// AuthConfig holds the application registration used for the
// authorization-code flow.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
}

// MicrosoftEndpoint returns the identity platform v2.0 endpoints for tenant.
// Client credentials are posted in the form body, as the token endpoint expects
// for confidential web clients.
func MicrosoftEndpoint(tenant string) oauth2.Endpoint {
	if tenant == "" {
		tenant = DefaultTenant
	}

	ep := microsoft.AzureADEndpoint(tenant)
	ep.AuthStyle = oauth2.AuthStyleInParams

	return ep
}

// AuthorityEndpoint returns the v2.0 endpoints for tenant under a custom
// authority host such as a sovereign cloud or a local test provider. An empty
// authority falls back to MicrosoftEndpoint.
func AuthorityEndpoint(authority, tenant string) oauth2.Endpoint {
	if authority == "" {
		return MicrosoftEndpoint(tenant)
	}

	if tenant == "" {
		tenant = DefaultTenant
	}

	base := strings.TrimSuffix(authority, "/") + "/" + tenant + "/oauth2/v2.0"

	return oauth2.Endpoint{
		AuthURL:   base + "/authorize",
		TokenURL:  base + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// LoginSession is the per-user state the handshake reads and writes.
// session.Session implements it.
type LoginSession interface {
	SetCSRFState(state string)
	// TakeCSRFState returns the pending state and clears it, so each state
	// value is usable for exactly one callback.
	TakeCSRFState() string
	SetAccessToken(token string)
}

// CallbackParams are the query parameters the identity provider sends to the
// redirect URI.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromRequest extracts CallbackParams from a redirect request.
func CallbackParamsFromRequest(r *http.Request) CallbackParams {
	q := r.URL.Query()

	return CallbackParams{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Authorizer runs the OAuth2 authorization-code handshake: it builds the
// authorize redirect, checks the returned state, and exchanges the code.
type Authorizer struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger

	// newState generates the CSRF state. Tests override it.
	newState func() string
}

// NewAuthorizer creates an Authorizer. An empty Scopes list uses DefaultScopes
// and a zero Endpoint uses MicrosoftEndpoint(DefaultTenant). httpClient is
// used for the token exchange; nil means http.DefaultClient.
func NewAuthorizer(cfg AuthConfig, httpClient *http.Client, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = MicrosoftEndpoint(DefaultTenant)
	}

	return &Authorizer{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
		logger:     logger,
		newState:   uuid.NewString,
	}
}

// BeginLogin stores a fresh CSRF state in sess and returns the authorize URL
// the user agent should be redirected to.
func (a *Authorizer) BeginLogin(sess LoginSession) string {
	state := a.newState()
	sess.SetCSRFState(state)

	a.logger.Info("starting authorization code flow",
		slog.String("redirect_url", a.cfg.RedirectURL),
	)

	return a.cfg.AuthCodeURL(state)
}

// CompleteLogin validates the callback against sess and exchanges the code
// for an access token, which is stored in sess and returned.
//
// A state mismatch fails closed with ErrAuthMismatch before any network I/O.
// A non-2xx token response yields a *TokenExchangeError.
func (a *Authorizer) CompleteLogin(ctx context.Context, sess LoginSession, params CallbackParams) (string, error) {
	expected := sess.TakeCSRFState()
	if expected == "" || params.State != expected {
		a.logger.Warn("authorization callback rejected: state mismatch")
		return "", ErrAuthMismatch
	}

	if params.Error != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, params.Error, params.ErrorDescription)
	}

	if params.Code == "" {
		return "", ErrMissingCode
	}

	a.logger.Info("received authorization code, exchanging for token")

	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	tok, err := a.cfg.Exchange(ctx, params.Code)
	if err != nil {
		return "", tokenExchangeError(err)
	}

	sess.SetAccessToken(tok.AccessToken)

	a.logger.Info("token exchange successful", slog.Time("expiry", tok.Expiry))

	return tok.AccessToken, nil
}

// tokenExchangeError converts an oauth2 exchange failure into a
// *TokenExchangeError, keeping the HTTP status when the endpoint answered.
func tokenExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &TokenExchangeError{
			StatusCode: re.Response.StatusCode,
			Body:       string(re.Body),
			Err:        err,
		}
	}

	return &TokenExchangeError{Err: err}
}
