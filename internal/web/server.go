// Package web is the browser-facing surface: sign-in, the mail form, and the
// send confirmation. Each browser is tied to one session.Session through a
// cookie; handlers build a Graph client around that session's token for the
// duration of a single request.
package web

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/mailflow"
	"github.com/tonimelisma/graph-mailer/internal/session"
)

// Authorizer runs the sign-in handshake. *graph.Authorizer implements it.
type Authorizer interface {
	BeginLogin(sess graph.LoginSession) string
	CompleteLogin(ctx context.Context, sess graph.LoginSession, params graph.CallbackParams) (string, error)
}

// Pipeline is the mail pipeline the form and send pages run, scoped to the
// caller's session ID. *mailflow.Pipeline implements it.
type Pipeline interface {
	Prepare(ctx context.Context, g mailflow.Graph, sessionID string) (*mailflow.FormData, error)
	Send(ctx context.Context, g mailflow.Graph, sessionID string, req mailflow.SendRequest) (*mailflow.SendOutcome, error)
}

// ClientFactory returns a Graph client authenticated by tok.
type ClientFactory func(tok graph.TokenSource) mailflow.Graph

// Deps are the collaborators a Server needs.
type Deps struct {
	Auth          Authorizer
	Sessions      *session.Store
	Pipeline      Pipeline
	NewClient     ClientFactory
	SecureCookies bool
	Logger        *slog.Logger
}

// Server holds the handlers and their shared state.
type Server struct {
	auth          Authorizer
	sessions      *session.Store
	pipeline      Pipeline
	newClient     ClientFactory
	secureCookies bool
	pages         *template.Template
	logger        *slog.Logger
}

// New validates deps and parses the page templates.
func New(deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Sessions == nil || deps.Pipeline == nil || deps.NewClient == nil {
		return nil, fmt.Errorf("web: incomplete dependencies")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pages, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web: parsing templates: %w", err)
	}

	return &Server{
		auth:          deps.Auth,
		sessions:      deps.Sessions,
		pipeline:      deps.Pipeline,
		newClient:     deps.NewClient,
		secureCookies: deps.SecureCookies,
		pages:         pages,
		logger:        logger,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.securityHeaders)

	r.Get("/healthz", s.health)
	r.Get("/", s.home)
	r.Get("/login", s.login)
	r.Get("/login/authorized", s.authorized)
	r.Get("/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/mailform", s.mailForm)
		r.Get("/send_mail", s.sendMail)
	})

	return r
}
