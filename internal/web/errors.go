package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/mailflow"
)

// fail maps err to a response. Messages shown to the user never include
// upstream response bodies.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, graph.ErrUnauthenticated) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	status, page := classify(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	s.logger.Log(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	s.render(w, status, "error.html", page)
}

func classify(err error) (int, errorPage) {
	var (
		mfe *graph.MissingFieldError
		ge  *graph.GraphError
	)

	switch {
	case errors.Is(err, graph.ErrAuthMismatch):
		return http.StatusBadRequest, errorPage{
			Title:   "Sign-in failed",
			Message: "The state returned to the redirect URI does not match. Please sign in again.",
		}
	case errors.Is(err, graph.ErrAuthorizationDenied):
		return http.StatusBadRequest, errorPage{
			Title:   "Sign-in denied",
			Message: "The identity provider did not grant access.",
		}
	case errors.Is(err, graph.ErrMissingCode):
		return http.StatusBadRequest, errorPage{
			Title:   "Sign-in failed",
			Message: "The identity provider did not return an authorization code.",
		}
	case errors.Is(err, graph.ErrTokenExchange):
		return http.StatusBadGateway, errorPage{
			Title:   "Sign-in failed",
			Message: "The authorization code could not be exchanged for an access token.",
		}
	case errors.Is(err, errFormToken):
		return http.StatusForbidden, errorPage{
			Title:   "Form expired",
			Message: "Open the mail form again and send from there.",
		}
	case errors.As(err, &mfe):
		return http.StatusBadRequest, errorPage{
			Title:   "Missing field",
			Message: "Required field missing: " + mfe.Field + ".",
		}
	case errors.Is(err, mailflow.ErrAttachmentPath):
		return http.StatusBadRequest, errorPage{
			Title:   "Invalid attachment",
			Message: "The attachment must be the profile photo prepared by the mail form.",
		}
	case errors.As(err, &ge):
		return http.StatusBadGateway, errorPage{
			Title:   "Microsoft Graph request failed",
			Message: http.StatusText(ge.StatusCode) + " from Microsoft Graph.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPage{
			Title:   "Timed out",
			Message: "Microsoft Graph did not answer in time.",
		}
	default:
		return http.StatusInternalServerError, errorPage{
			Title:   "Something went wrong",
			Message: "The request could not be completed.",
		}
	}
}
