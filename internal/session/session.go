// Package session holds the per-browser login state: the pending CSRF state
// and, after a successful handshake, the bearer access token. Sessions live in
// process memory only; nothing here is ever written to disk.
package session

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/graph-mailer/internal/graph"
)

// Session is one user's login state. It implements graph.LoginSession and
// graph.TokenSource. All methods are safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time

	mu          sync.Mutex
	csrfState   string
	accessToken string
	displayName string
	email       string
	formToken   string
}

// New returns an empty session with a random ID.
func New() *Session {
	return &Session{id: uuid.NewString(), createdAt: time.Now()}
}

// FromToken returns a session that is already authenticated with tok. Used
// by the CLI, where the token comes from the environment instead of a
// browser handshake.
func FromToken(tok string) *Session {
	s := New()
	s.accessToken = tok

	return s
}

// ID returns the session identifier used as the cookie value.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// SetCSRFState records the state issued with the authorize redirect,
// replacing any earlier pending value.
func (s *Session) SetCSRFState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.csrfState = state
}

// TakeCSRFState returns the pending state and clears it.
func (s *Session) TakeCSRFState() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.csrfState
	s.csrfState = ""

	return st
}

// SetAccessToken stores the token obtained from the code exchange.
func (s *Session) SetAccessToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = tok
}

// Token returns the access token, or graph.ErrUnauthenticated when the
// session has not completed a login.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken == "" {
		return "", fmt.Errorf("session %s: %w", s.id, graph.ErrUnauthenticated)
	}

	return s.accessToken, nil
}

// Authenticated reports whether an access token is present.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accessToken != ""
}

// SetProfile caches the signed-in user's display name and address.
func (s *Session) SetProfile(displayName, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.displayName = displayName
	s.email = email
}

// Profile returns the cached display name and address.
func (s *Session) Profile() (displayName, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.displayName, s.email
}

// IssueFormToken replaces the mail form token and returns it. A send must
// echo the token of a form this session rendered.
func (s *Session) IssueFormToken() string {
	tok := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.formToken = tok

	return tok
}

// CheckFormToken reports whether tok is the current form token.
func (s *Session) CheckFormToken(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.formToken == "" || tok == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(s.formToken), []byte(tok)) == 1
}

// Clear drops all login state, leaving the ID intact.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.csrfState = ""
	s.accessToken = ""
	s.displayName = ""
	s.email = ""
	s.formToken = ""
}

// Compile-time interface checks.
var (
	_ graph.LoginSession = (*Session)(nil)
	_ graph.TokenSource  = (*Session)(nil)
)
