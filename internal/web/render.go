package web

import (
	"bytes"
	"embed"
	"encoding/base64"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

// parseTemplates compiles every page template. Pages are executed by file
// name, e.g. "mailform.html".
func parseTemplates() (*template.Template, error) {
	return template.New("").ParseFS(templateFiles, "templates/*.html")
}

// PhotoDataURI returns the photo as an inline data URI for an img src.
func PhotoDataURI(contentType string, data []byte) template.URL {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	//nolint:gosec // data is image bytes with a known image content type
	return template.URL("data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// render executes the named page into a buffer first so a template error
// never leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer

	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("template error", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("writing response", slog.String("error", err.Error()))
	}
}

type errorPage struct {
	Title   string
	Message string
}
