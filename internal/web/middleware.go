package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tonimelisma/graph-mailer/internal/session"
)

// SessionCookieName is the cookie that carries the session ID.
const SessionCookieName = "graph_mailer_session"

type contextKey string

const contextKeySession contextKey = "session"

// sessionFromContext returns the session requireAuth attached.
func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(contextKeySession).(*session.Session)
	return s
}

// currentSession looks up the session named by the request cookie.
func (s *Server) currentSession(r *http.Request) (*session.Session, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, false
	}

	return s.sessions.Get(c.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		// Lax, not Strict: the identity provider's redirect back to
		// /login/authorized is a cross-site top-level navigation.
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// requireAuth passes only requests whose session holds an access token.
// Everyone else is sent to /login.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.currentSession(r)
		if !ok || !sess.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeySession, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders sets response headers for every page.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")

		if s.secureCookies {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request. Query strings are left out: the
// callback carries the authorization code and /send_mail carries the body.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
