// Package testutil provides a stand-in Microsoft Graph server for end-to-end
// tests that drive the built binary.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Default fake profile.
const (
	FakeDisplayName = "Ada Lovelace"
	FakeMail        = "ada@contoso.com"
	FakeItemID      = "abc123"
	FakeLinkURL     = "https://1drv.ms/i/s!abc123"
)

// FakeGraph answers the profile, photo, upload, createLink, and sendMail
// calls. Exported fields are read on every request; set them before the
// binary under test runs.
type FakeGraph struct {
	*httptest.Server

	mu sync.Mutex

	// Photo is returned from /me/photo/$value; nil answers 404.
	Photo            []byte
	PhotoContentType string
	UploadStatus     int
	SendStatus       int
	SendBody         string

	uploads []string
	sent    []json.RawMessage
	tokens  []string
}

// NewFakeGraph starts a FakeGraph that accepts everything: a JPEG photo, a
// 201 upload, and a 202 send with an empty body.
func NewFakeGraph(tb testing.TB) *FakeGraph {
	tb.Helper()

	f := &FakeGraph{
		Photo:            []byte("\xff\xd8\xff\xe0fake-jpeg"),
		PhotoContentType: "image/pjpeg",
		UploadStatus:     http.StatusCreated,
		SendStatus:       http.StatusAccepted,
	}

	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	tb.Cleanup(f.Close)

	return f
}

// Uploads returns the request paths of every content PUT.
func (f *FakeGraph) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.uploads...)
}

// SentMessages returns the sendMail request bodies in order.
func (f *FakeGraph) SentMessages() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]json.RawMessage(nil), f.sent...)
}

// Tokens returns the bearer tokens seen, one per request.
func (f *FakeGraph) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.tokens...)
}

func (f *FakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tokens = append(f.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && path == "/me":
		writeJSON(w, http.StatusOK, map[string]string{
			"id":                "u1",
			"displayName":       FakeDisplayName,
			"mail":              FakeMail,
			"userPrincipalName": FakeMail,
		})

	case r.Method == http.MethodGet && path == "/me/photo/$value":
		if f.Photo == nil {
			writeJSON(w, http.StatusNotFound, graphError("ImageNotFound"))
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(f.Photo)

	case r.Method == http.MethodGet && path == "/me/photo":
		writeJSON(w, http.StatusOK, map[string]string{"@odata.mediaContentType": f.PhotoContentType})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/me/drive/root:/") && strings.HasSuffix(path, ":/content"):
		_, _ = io.Copy(io.Discard, r.Body)
		f.uploads = append(f.uploads, path)

		if f.UploadStatus/100 != 2 {
			writeJSON(w, f.UploadStatus, graphError("itemNotFound"))
			return
		}

		writeJSON(w, f.UploadStatus, map[string]any{"id": FakeItemID, "name": "me.jpeg"})

	case r.Method == http.MethodPost && path == "/me/drive/items/"+FakeItemID+"/createLink":
		writeJSON(w, http.StatusCreated, map[string]any{"link": map[string]string{"webUrl": FakeLinkURL}})

	case r.Method == http.MethodPost && path == "/me/sendMail":
		body, _ := io.ReadAll(r.Body)
		f.sent = append(f.sent, json.RawMessage(body))

		w.WriteHeader(f.SendStatus)
		_, _ = io.WriteString(w, f.SendBody)

	default:
		writeJSON(w, http.StatusNotFound, graphError("notFound"))
	}
}

func graphError(code string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": code}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
