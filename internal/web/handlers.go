package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/mailflow"
)

// FormTokenParam is the query parameter carrying the mail form token.
const FormTokenParam = "form_token"

// errFormToken rejects a send that did not come from this session's form.
var errFormToken = errors.New("web: mail form token mismatch")

type homePage struct {
	SignedIn bool
	Name     string
}

type mailFormPage struct {
	*mailflow.FormData
	PhotoURI  template.URL
	Subject   string
	FormToken string
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	var page homePage

	if sess, ok := s.currentSession(r); ok && sess.Authenticated() {
		page.SignedIn = true
		page.Name, _ = sess.Profile()
	}

	s.render(w, http.StatusOK, "home.html", page)
}

// login starts the handshake. An existing session is reused so a retried
// sign-in does not leave orphans behind.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(r)
	if !ok {
		sess = s.sessions.Create()
		s.setSessionCookie(w, sess)
	}

	http.Redirect(w, r, s.auth.BeginLogin(sess), http.StatusFound)
}

// authorized is the redirect URI. Without a session there is no state to
// compare against, which is treated as a mismatch.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(r)
	if !ok {
		s.fail(w, r, graph.ErrAuthMismatch)
		return
	}

	if _, err := s.auth.CompleteLogin(r.Context(), sess, graph.CallbackParamsFromRequest(r)); err != nil {
		s.fail(w, r, err)
		return
	}

	http.Redirect(w, r, "/mailform", http.StatusFound)
}

func (s *Server) mailForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	form, err := s.pipeline.Prepare(r.Context(), s.newClient(sess), sess.ID())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sess.SetProfile(form.Name, form.Email)

	s.render(w, http.StatusOK, "mailform.html", mailFormPage{
		FormData:  form,
		PhotoURI:  PhotoDataURI(form.PhotoContentType, form.PhotoData),
		Subject:   mailflow.DefaultSubject,
		FormToken: sess.IssueFormToken(),
	})
}

// sendMail runs a send. The request must carry the token of a form this
// session rendered, so a cross-site link cannot send as the user.
func (s *Server) sendMail(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	q := r.URL.Query()

	if !sess.CheckFormToken(q.Get(FormTokenParam)) {
		s.fail(w, r, errFormToken)
		return
	}

	outcome, err := s.pipeline.Send(r.Context(), s.newClient(sess), sess.ID(), mailflow.SendRequest{
		Subject:    q.Get("subject"),
		Recipients: q.Get("email"),
		Body:       q.Get("body"),
		Sender:     q.Get("sender"),
		ProfilePic: q.Get("profile_pic"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.render(w, http.StatusOK, "mailsent.html", outcome)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.currentSession(r); ok {
		s.sessions.Delete(sess.ID())
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	}); err != nil {
		s.logger.Debug("writing health response", slog.String("error", err.Error()))
	}
}
