package mailflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/history"
)

// fakeGraph is a scripted Graph that counts calls.
type fakeGraph struct {
	mu sync.Mutex

	user      *graph.User
	meErr     error
	photo     []byte // nil = no photo
	photoErr  error
	upload    *graph.UploadResult
	uploadErr error
	link      graph.SharingURL
	linkErr   error
	send      *graph.SendResult
	sendErr   error

	calls       map[string]int
	uploadPath  string
	linkItemID  string
	linkType    string
	sentMessage *graph.Message
	afterSend   func()
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		user:   &graph.User{ID: "u1", DisplayName: "Ada Lovelace", Email: "ada@contoso.com", UserPrincipalName: "ada@contoso.com"},
		photo:  []byte("\xff\xd8\xff\xe0jpeg"),
		upload: &graph.UploadResult{StatusCode: 201, Success: true, ItemID: "abc123"},
		link:   "https://1drv.ms/i/s!abc123",
		send:   &graph.SendResult{StatusCode: 202},
		calls:  make(map[string]int),
	}
}

func (f *fakeGraph) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[name]++
}

func (f *fakeGraph) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[name]
}

func (f *fakeGraph) Me(context.Context) (*graph.User, error) {
	f.count("me")

	return f.user, f.meErr
}

func (f *fakeGraph) ProfilePhoto(_ context.Context, _, persistAs string) (*graph.Photo, error) {
	f.count("photo")

	if f.photoErr != nil {
		return nil, f.photoErr
	}

	if f.photo == nil {
		return &graph.Photo{}, nil
	}

	path := persistAs + ".jpeg"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, f.photo, 0o600); err != nil {
		return nil, err
	}

	return &graph.Photo{Data: f.photo, ContentType: "image/jpeg", LocalPath: path}, nil
}

func (f *fakeGraph) UploadFile(_ context.Context, localPath, _ string) (*graph.UploadResult, error) {
	f.count("upload")
	f.uploadPath = localPath

	return f.upload, f.uploadErr
}

func (f *fakeGraph) CreateLink(_ context.Context, itemID, linkType string) (graph.SharingURL, error) {
	f.count("link")
	f.linkItemID = itemID
	f.linkType = linkType

	return f.link, f.linkErr
}

func (f *fakeGraph) SendMail(_ context.Context, msg *graph.Message) (*graph.SendResult, error) {
	f.count("send")
	f.sentMessage = msg

	if f.afterSend != nil {
		f.afterSend()
	}

	return f.send, f.sendErr
}

// memRecorder collects recorded entries.
type memRecorder struct {
	entries []history.Entry
	err     error
}

func (m *memRecorder) Record(ctx context.Context, e history.Entry) (history.Entry, error) {
	if m.err != nil {
		return history.Entry{}, m.err
	}

	if err := ctx.Err(); err != nil {
		return history.Entry{}, err
	}

	m.entries = append(m.entries, e)

	return e, nil
}

const testSession = "session-1"

func newTestPipeline(t *testing.T, rec Recorder) (*Pipeline, string) {
	t.Helper()

	dir := t.TempDir()

	p, err := New(Options{PhotoDir: dir, SaveToSentItems: true}, rec, slog.Default())
	require.NoError(t, err)

	return p, dir
}

func TestPrepare_LinkEmbeddedAfterSuccessfulUpload(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	g := newFakeGraph()

	form, err := p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", form.Name)
	assert.Equal(t, "ada@contoso.com", form.Email)
	assert.Equal(t, filepath.Join(dir, testSession, "me.jpeg"), form.ProfilePic)
	assert.False(t, form.DefaultPhoto)

	assert.Equal(t, 1, g.called("link"))
	assert.Equal(t, "abc123", g.linkItemID)
	assert.Equal(t, graph.LinkView, g.linkType)
	assert.Equal(t, graph.SharingURL("https://1drv.ms/i/s!abc123"), form.LinkURL)
	assert.Contains(t, form.Body, "https://1drv.ms/i/s!abc123")
	assert.Contains(t, form.Body, "Ada Lovelace")
}

func TestPrepare_FailedUploadSkipsLink(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.upload = &graph.UploadResult{StatusCode: 404, Success: false}

	form, err := p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)

	assert.Equal(t, 0, g.called("link"))
	assert.Empty(t, form.LinkURL)
	assert.NotContains(t, form.Body, "href=\"https://1drv")
	assert.NotContains(t, form.Body, "view the uploaded photo")
	assert.Equal(t, 404, form.Upload.StatusCode)
}

func TestPrepare_SuccessWithoutItemIDSkipsLink(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.upload = &graph.UploadResult{StatusCode: 200, Success: true}

	form, err := p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)

	assert.Equal(t, 0, g.called("link"))
	assert.Empty(t, form.LinkURL)
}

func TestPrepare_DefaultPhotoWhenNoneAvailable(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.photo = nil

	form, err := p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)

	assert.True(t, form.DefaultPhoto)
	assert.Equal(t, filepath.Join(dir, testSession, DefaultPhotoName), form.ProfilePic)
	assert.Equal(t, "image/png", form.PhotoContentType)
	assert.Equal(t, defaultPhotoPNG, form.PhotoData)
	assert.Equal(t, form.ProfilePic, g.uploadPath)
	assert.FileExists(t, form.ProfilePic)
}

func TestPrepare_ProfileErrorIsFatal(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.meErr = &graph.GraphError{StatusCode: 401, Err: graph.ErrUnauthorized}

	_, err := p.Prepare(context.Background(), g, testSession)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrUnauthorized)
	assert.Equal(t, 0, g.called("photo"))
	assert.Equal(t, 0, g.called("upload"))
}

func TestPrepare_UploadTransportErrorDegrades(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.upload = nil
	g.uploadErr = errors.New("connection reset")

	form, err := p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)

	assert.Nil(t, form.Upload)
	assert.Empty(t, form.LinkURL)
	assert.Equal(t, 0, g.called("link"))
}

func TestPrepare_UploadUnauthenticatedIsFatal(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.upload = nil
	g.uploadErr = fmt.Errorf("upload: %w", graph.ErrUnauthenticated)

	_, err := p.Prepare(context.Background(), g, testSession)
	assert.ErrorIs(t, err, graph.ErrUnauthenticated)
}

func TestPrepare_LinkErrorDegrades(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.link = ""
	g.linkErr = &graph.GraphError{StatusCode: 403, Err: graph.ErrForbidden}

	form, err := p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)

	assert.Equal(t, 1, g.called("link"))
	assert.Empty(t, form.LinkURL)
	assert.NotContains(t, form.Body, "view the uploaded photo")
}

func TestPrepare_CustomLinkType(t *testing.T) {
	dir := t.TempDir()

	p, err := New(Options{PhotoDir: dir, LinkType: graph.LinkEdit}, nil, nil)
	require.NoError(t, err)

	g := newFakeGraph()

	_, err = p.Prepare(context.Background(), g, testSession)
	require.NoError(t, err)
	assert.Equal(t, graph.LinkEdit, g.linkType)
}

func TestRenderBody_EscapesName(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	body, err := p.RenderBody("<script>x</script>", "")
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestNew_TemplateOverride(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "custom.html")
	require.NoError(t, os.WriteFile(tmplPath, []byte(`Hi {{.Name}} {{.LinkURL}}`), 0o600))

	p, err := New(Options{PhotoDir: dir, TemplatePath: tmplPath}, nil, nil)
	require.NoError(t, err)

	body, err := p.RenderBody("Ada", "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada https://example.com/x", body)
}

func TestNew_TemplateMissing(t *testing.T) {
	_, err := New(Options{PhotoDir: t.TempDir(), TemplatePath: "/nonexistent/t.html"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailflow: parsing email template")
}

func TestSend_Success(t *testing.T) {
	rec := &memRecorder{}
	p, dir := newTestPipeline(t, rec)
	g := newFakeGraph()

	pic := filepath.Join(dir, testSession, "me.jpeg")
	require.NoError(t, os.MkdirAll(filepath.Dir(pic), 0o700))
	require.NoError(t, os.WriteFile(pic, []byte("jpeg"), 0o600))

	out, err := p.Send(context.Background(), g, testSession, SendRequest{
		Subject:    "Welcome",
		Recipients: "a@contoso.com; b@contoso.com;",
		Body:       "<p>hi</p>",
		Sender:     "ada@contoso.com",
		ProfilePic: pic,
	})
	require.NoError(t, err)

	assert.True(t, out.OK())
	assert.Equal(t, 202, out.StatusCode)
	assert.Equal(t, []string{"a@contoso.com", "b@contoso.com"}, out.Recipients)
	assert.Equal(t, len("<p>hi</p>"), out.BodyLength)
	assert.Empty(t, out.ResponseJSON)

	require.NotNil(t, g.sentMessage)
	require.Len(t, g.sentMessage.Attachments, 1)
	assert.Equal(t, "me.jpeg", g.sentMessage.Attachments[0].Name)
	assert.Equal(t, "anBlZw==", g.sentMessage.Attachments[0].ContentBytes)
	assert.True(t, g.sentMessage.SaveToSentItems)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "Welcome", rec.entries[0].Subject)
	assert.Equal(t, 1, rec.entries[0].Attachments)
	assert.Equal(t, 202, rec.entries[0].StatusCode)
}

func TestSend_MissingFieldsMakeNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		req   SendRequest
		field string
	}{
		{"no subject", SendRequest{Recipients: "a@contoso.com", Body: "b"}, "subject"},
		{"no recipients", SendRequest{Subject: "s", Recipients: " ; ", Body: "b"}, "recipients"},
		{"no body", SendRequest{Subject: "s", Recipients: "a@contoso.com"}, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			p, _ := newTestPipeline(t, rec)
			g := newFakeGraph()

			// A missing attachment would fail too; validation must come first.
			tt.req.ProfilePic = "/nonexistent/me.jpeg"

			_, err := p.Send(context.Background(), g, testSession, tt.req)
			require.Error(t, err)

			var mfe *graph.MissingFieldError
			require.ErrorAs(t, err, &mfe)
			assert.Equal(t, tt.field, mfe.Field)
			assert.Equal(t, 0, g.called("send"))
			assert.Empty(t, rec.entries)
		})
	}
}

func TestSend_AttachmentOutsidePhotoDir(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	_, err := p.Send(context.Background(), g, testSession, SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b", ProfilePic: outside,
	})
	assert.ErrorIs(t, err, ErrAttachmentPath)
	assert.Equal(t, 0, g.called("send"))
}

func TestSend_RejectionReportedInOutcome(t *testing.T) {
	rec := &memRecorder{}
	p, _ := newTestPipeline(t, rec)
	g := newFakeGraph()
	g.send = &graph.SendResult{
		StatusCode: 400,
		Body:       []byte(`{"error":{"code":"ErrorInvalidRecipients","message":"bad"}}`),
	}

	out, err := p.Send(context.Background(), g, testSession, SendRequest{
		Subject: "s", Recipients: "not-an-address", Body: "b",
	})
	require.NoError(t, err)

	assert.False(t, out.OK())
	assert.Equal(t, 400, out.StatusCode)
	assert.Contains(t, out.ResponseJSON, "\n  \"error\": {")
	assert.Contains(t, out.ResponseJSON, "ErrorInvalidRecipients")
	require.Len(t, rec.entries, 1)
	assert.Equal(t, 400, rec.entries[0].StatusCode)
}

func TestSend_NoAttachment(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()

	_, err := p.Send(context.Background(), g, testSession, SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b",
	})
	require.NoError(t, err)
	assert.Empty(t, g.sentMessage.Attachments)
}

func TestSend_RecordFailureDoesNotFailSend(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	p, _ := newTestPipeline(t, rec)
	g := newFakeGraph()

	out, err := p.Send(context.Background(), g, testSession, SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b",
	})
	require.NoError(t, err)
	assert.Equal(t, 202, out.StatusCode)
}

func TestSend_TransportErrorPropagates(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	g := newFakeGraph()
	g.send = nil
	g.sendErr = errors.New("dial tcp: refused")

	_, err := p.Send(context.Background(), g, testSession, SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b",
	})
	assert.Error(t, err)
}

func TestPrettyJSON(t *testing.T) {
	assert.Empty(t, prettyJSON(nil))
	assert.Empty(t, prettyJSON([]byte("  \n")))
	assert.Equal(t, "{\n  \"a\": 1\n}", prettyJSON([]byte(`{"a":1}`)))
	assert.Equal(t, "not json", prettyJSON([]byte("not json")))
}

func TestDefaultPhoto_ReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultPhotoName)
	require.NoError(t, os.WriteFile(path, []byte("custom"), 0o600))

	got, data, err := DefaultPhoto(dir)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, []byte("custom"), data)
}

func TestPrepare_SessionsKeepSeparatePhotos(t *testing.T) {
	p, dir := newTestPipeline(t, nil)

	alice := newFakeGraph()
	alice.photo = []byte("ALICE-PHOTO")

	bob := newFakeGraph()
	bob.photo = []byte("BOB-PHOTO")

	aliceForm, err := p.Prepare(context.Background(), alice, "alice-session")
	require.NoError(t, err)

	bobForm, err := p.Prepare(context.Background(), bob, "bob-session")
	require.NoError(t, err)

	assert.NotEqual(t, aliceForm.ProfilePic, bobForm.ProfilePic)
	assert.Equal(t, filepath.Join(dir, "alice-session", "me.jpeg"), aliceForm.ProfilePic)

	data, err := os.ReadFile(aliceForm.ProfilePic)
	require.NoError(t, err)
	assert.Equal(t, "ALICE-PHOTO", string(data))

	_, err = p.Send(context.Background(), alice, "alice-session", SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b", ProfilePic: aliceForm.ProfilePic,
	})
	require.NoError(t, err)
	require.Len(t, alice.sentMessage.Attachments, 1)
	assert.Equal(t, "QUxJQ0UtUEhPVE8=", alice.sentMessage.Attachments[0].ContentBytes)
}

func TestSend_OtherSessionsPhotoRejected(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	bob := newFakeGraph()
	bobForm, err := p.Prepare(context.Background(), bob, "bob-session")
	require.NoError(t, err)

	alice := newFakeGraph()

	_, err = p.Send(context.Background(), alice, "alice-session", SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b", ProfilePic: bobForm.ProfilePic,
	})
	assert.ErrorIs(t, err, ErrAttachmentPath)
	assert.Equal(t, 0, alice.called("send"))
}

func TestSessionDir_RejectsPathLikeIDs(t *testing.T) {
	p, dir := newTestPipeline(t, nil)

	for _, id := range []string{"", ".", "..", "a/b", "../x"} {
		_, err := p.SessionDir(id)
		assert.ErrorIs(t, err, ErrSessionID, "id %q", id)
	}

	got, err := p.SessionDir("abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc"), got)
}

func TestDiscard_RemovesOnlyThatSession(t *testing.T) {
	p, dir := newTestPipeline(t, nil)

	_, err := p.Prepare(context.Background(), newFakeGraph(), "alice-session")
	require.NoError(t, err)
	_, err = p.Prepare(context.Background(), newFakeGraph(), "bob-session")
	require.NoError(t, err)

	require.NoError(t, p.Discard("alice-session"))

	assert.NoDirExists(t, filepath.Join(dir, "alice-session"))
	assert.FileExists(t, filepath.Join(dir, "bob-session", "me.jpeg"))

	// Discarding again is harmless.
	assert.NoError(t, p.Discard("alice-session"))
}

func TestSend_RecordedAfterClientCancels(t *testing.T) {
	rec := &memRecorder{}
	p, _ := newTestPipeline(t, rec)
	g := newFakeGraph()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client goes away right after Graph accepts the mail.
	g.afterSend = cancel

	out, err := p.Send(ctx, g, testSession, SendRequest{
		Subject: "s", Recipients: "a@contoso.com", Body: "b",
	})
	require.NoError(t, err)
	assert.Equal(t, 202, out.StatusCode)
	require.Len(t, rec.entries, 1)
}
