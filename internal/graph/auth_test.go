package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// testTokenJSON is the canonical token response for tests.
const testTokenJSON = `{
	"access_token": "test-access-token",
	"token_type": "Bearer",
	"expires_in": 3600
}`

// fakeLoginSession is an in-memory LoginSession.
type fakeLoginSession struct {
	state string
	token string
}

func (s *fakeLoginSession) SetCSRFState(state string) { s.state = state }

func (s *fakeLoginSession) TakeCSRFState() string {
	st := s.state
	s.state = ""

	return st
}

func (s *fakeLoginSession) SetAccessToken(tok string) { s.token = tok }

// newMockTokenServer creates a token endpoint. tokenHandler controls the
// response; nil returns testTokenJSON. The returned counter records calls.
func newMockTokenServer(t *testing.T, tokenHandler http.HandlerFunc) (oauth2.Endpoint, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	handler := tokenHandler
	if handler == nil {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(testTokenJSON))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, &calls
}

func newTestAuthorizer(t *testing.T, endpoint oauth2.Endpoint) *Authorizer {
	t.Helper()

	return NewAuthorizer(AuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:5000/login/authorized",
		Endpoint:     endpoint,
	}, http.DefaultClient, nil)
}

func TestBeginLogin_StoresStateAndBuildsURL(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	a := newTestAuthorizer(t, endpoint)
	a.newState = func() string { return "state-123" }

	sess := &fakeLoginSession{}
	authURL := a.BeginLogin(sess)

	assert.Equal(t, "state-123", sess.state)

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:5000/login/authorized", q.Get("redirect_uri"))
	assert.Equal(t, "User.Read Mail.Send Files.ReadWrite", q.Get("scope"))
}

func TestBeginLogin_FreshStateEachTime(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	a := newTestAuthorizer(t, endpoint)

	sess := &fakeLoginSession{}
	a.BeginLogin(sess)
	first := sess.state
	a.BeginLogin(sess)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, sess.state)
}

func TestCompleteLogin_Success(t *testing.T) {
	var gotForm url.Values

	endpoint, calls := newMockTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTokenJSON))
	})

	a := newTestAuthorizer(t, endpoint)
	sess := &fakeLoginSession{state: "s1"}

	tok, err := a.CompleteLogin(context.Background(), sess, CallbackParams{State: "s1", Code: "auth-code"})
	require.NoError(t, err)

	assert.Equal(t, "test-access-token", tok)
	assert.Equal(t, "test-access-token", sess.token)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "auth-code", gotForm.Get("code"))
	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "client-secret", gotForm.Get("client_secret"))
	assert.Empty(t, sess.state, "state must be consumed")
}

func TestCompleteLogin_StateMismatchNeverExchanges(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		returned string
	}{
		{"different tokens", "t1", "t2"},
		{"empty returned", "t1", ""},
		{"no pending state", "", "t1"},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, calls := newMockTokenServer(t, nil)
			a := newTestAuthorizer(t, endpoint)
			sess := &fakeLoginSession{state: tt.stored}

			_, err := a.CompleteLogin(context.Background(), sess, CallbackParams{State: tt.returned, Code: "code"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAuthMismatch)
			assert.Equal(t, int32(0), calls.Load())
			assert.Empty(t, sess.token)
		})
	}
}

func TestCompleteLogin_StateIsSingleUse(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	a := newTestAuthorizer(t, endpoint)
	sess := &fakeLoginSession{state: "s1"}

	_, err := a.CompleteLogin(context.Background(), sess, CallbackParams{State: "s1", Code: "c"})
	require.NoError(t, err)

	_, err = a.CompleteLogin(context.Background(), sess, CallbackParams{State: "s1", Code: "c"})
	require.ErrorIs(t, err, ErrAuthMismatch)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteLogin_ProviderError(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	a := newTestAuthorizer(t, endpoint)
	sess := &fakeLoginSession{state: "s1"}

	_, err := a.CompleteLogin(context.Background(), sess, CallbackParams{
		State:            "s1",
		Error:            "access_denied",
		ErrorDescription: "user declined",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.Contains(t, err.Error(), "user declined")
	assert.Equal(t, int32(0), calls.Load())
}

func TestCompleteLogin_MissingCode(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	a := newTestAuthorizer(t, endpoint)
	sess := &fakeLoginSession{state: "s1"}

	_, err := a.CompleteLogin(context.Background(), sess, CallbackParams{State: "s1"})
	require.ErrorIs(t, err, ErrMissingCode)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCompleteLogin_TokenEndpointNon2xx(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	})

	a := newTestAuthorizer(t, endpoint)
	sess := &fakeLoginSession{state: "s1"}

	_, err := a.CompleteLogin(context.Background(), sess, CallbackParams{State: "s1", Code: "stale"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExchange)

	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusBadRequest, exErr.StatusCode)
	assert.Contains(t, exErr.Body, "invalid_grant")
	assert.Empty(t, sess.token)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteLogin_TokenEndpointUnreachable(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	endpoint.TokenURL = "http://127.0.0.1:1/token"

	a := newTestAuthorizer(t, endpoint)
	sess := &fakeLoginSession{state: "s1"}

	_, err := a.CompleteLogin(context.Background(), sess, CallbackParams{State: "s1", Code: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExchange)

	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Zero(t, exErr.StatusCode)
}

func TestCallbackParamsFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/login/authorized?state=s&code=c&error=e&error_description=d", nil)

	p := CallbackParamsFromRequest(r)
	assert.Equal(t, CallbackParams{State: "s", Code: "c", Error: "e", ErrorDescription: "d"}, p)
}

func TestMicrosoftEndpoint(t *testing.T) {
	ep := MicrosoftEndpoint("")
	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/token", ep.TokenURL)
	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/authorize", ep.AuthURL)
	assert.Equal(t, oauth2.AuthStyleInParams, ep.AuthStyle)

	ep = MicrosoftEndpoint("contoso.onmicrosoft.com")
	assert.Contains(t, ep.TokenURL, "/contoso.onmicrosoft.com/")
}

func TestAuthorityEndpoint(t *testing.T) {
	ep := AuthorityEndpoint("https://login.microsoftonline.us/", "contoso")
	assert.Equal(t, "https://login.microsoftonline.us/contoso/oauth2/v2.0/authorize", ep.AuthURL)
	assert.Equal(t, "https://login.microsoftonline.us/contoso/oauth2/v2.0/token", ep.TokenURL)
	assert.Equal(t, oauth2.AuthStyleInParams, ep.AuthStyle)

	ep = AuthorityEndpoint("http://127.0.0.1:9999", "")
	assert.Equal(t, "http://127.0.0.1:9999/common/oauth2/v2.0/token", ep.TokenURL)

	assert.Equal(t, MicrosoftEndpoint("contoso"), AuthorityEndpoint("", "contoso"))
}

func TestNewAuthorizer_Defaults(t *testing.T) {
	a := NewAuthorizer(AuthConfig{ClientID: "id"}, nil, nil)

	assert.Equal(t, DefaultScopes, a.cfg.Scopes)
	assert.Equal(t, MicrosoftEndpoint(DefaultTenant), a.cfg.Endpoint)
}
