// Package mailflow runs the two halves of the welcome-mail pipeline on top of
// a signed-in Graph client. Prepare walks profile, photo, upload, and sharing
// link to produce a ready-to-send form; Send validates the form input,
// attaches the photo, and sends the message.
//
// Every step after the profile lookup degrades instead of failing: a missing
// photo becomes the bundled default, and a failed upload or link request
// leaves the link empty so the body carries no link at all.
//
// Photos are cached per session under PhotoDir/<session id>. A send may only
// attach a file from its own session's directory.
package mailflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/history"
	"github.com/tonimelisma/graph-mailer/internal/localfile"
)

// DefaultSubject is the subject the mail form starts with.
const DefaultSubject = "Welcome to Microsoft Graph"

// photoBaseName is the persistAs name for the signed-in user's photo.
const photoBaseName = "me"

// ErrAttachmentPath is returned when a send names a photo outside the photo
// directory.
var ErrAttachmentPath = errors.New("mailflow: attachment path outside photo directory")

// ErrSessionID is returned for a session ID that cannot name a directory.
var ErrSessionID = errors.New("mailflow: invalid session id")

// Graph is the subset of *graph.Client the pipeline drives.
type Graph interface {
	Me(ctx context.Context) (*graph.User, error)
	ProfilePhoto(ctx context.Context, userID, persistAs string) (*graph.Photo, error)
	UploadFile(ctx context.Context, localPath, folder string) (*graph.UploadResult, error)
	CreateLink(ctx context.Context, itemID, linkType string) (graph.SharingURL, error)
	SendMail(ctx context.Context, msg *graph.Message) (*graph.SendResult, error)
}

// Recorder stores completed sends. *history.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Options configures a Pipeline.
type Options struct {
	PhotoDir        string
	UploadFolder    string
	LinkType        string
	SaveToSentItems bool
	TemplatePath    string // empty = built-in template
}

// Pipeline is stateless across runs and safe for concurrent use; each call
// receives the Graph client bound to the caller's session.
type Pipeline struct {
	opts     Options
	tmpl     *template.Template
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Pipeline. recorder may be nil to skip send history.
func New(opts Options, recorder Recorder, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.LinkType == "" {
		opts.LinkType = graph.LinkView
	}

	tmpl, err := loadEmailTemplate(opts.TemplatePath)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		opts:     opts,
		tmpl:     tmpl,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// FormData is everything the mail form shows and posts back.
type FormData struct {
	Name             string
	Email            string
	ProfilePic       string // local path of the photo that will be attached
	PhotoData        []byte
	PhotoContentType string
	DefaultPhoto     bool
	Upload           *graph.UploadResult // nil when the upload could not be attempted
	LinkURL          graph.SharingURL
	Body             string
}

// SessionDir returns the photo directory owned by sessionID.
func (p *Pipeline) SessionDir(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." || filepath.Base(sessionID) != sessionID {
		return "", fmt.Errorf("%w: %q", ErrSessionID, sessionID)
	}

	return filepath.Join(p.opts.PhotoDir, sessionID), nil
}

// Discard removes the photos cached for sessionID.
func (p *Pipeline) Discard(sessionID string) error {
	dir, err := p.SessionDir(sessionID)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("mailflow: removing photos for session: %w", err)
	}

	p.logger.Debug("session photos removed", slog.String("dir", dir))

	return nil
}

// Prepare assembles the mail form for the signed-in user of sessionID. Only
// a failed profile lookup, a missing token, or cancellation abort it.
func (p *Pipeline) Prepare(ctx context.Context, g Graph, sessionID string) (*FormData, error) {
	dir, err := p.SessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	user, err := g.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("mailflow: reading profile: %w", err)
	}

	form := &FormData{
		Name:  user.DisplayName,
		Email: user.Email,
	}

	if err := p.resolvePhoto(ctx, g, dir, form); err != nil {
		return nil, err
	}

	upload, err := g.UploadFile(ctx, form.ProfilePic, p.opts.UploadFolder)
	if err != nil {
		if isFatal(ctx, err) {
			return nil, err
		}

		p.logger.Warn("photo upload could not be attempted", slog.String("error", err.Error()))
	}

	form.Upload = upload

	// A failed upload never reaches createLink.
	if upload != nil && upload.Success && upload.ItemID != "" {
		link, linkErr := g.CreateLink(ctx, upload.ItemID, p.opts.LinkType)

		switch {
		case linkErr == nil:
			form.LinkURL = link
		case isFatal(ctx, linkErr):
			return nil, linkErr
		default:
			p.logger.Warn("sharing link not created",
				slog.String("item_id", upload.ItemID),
				slog.String("error", linkErr.Error()),
			)
		}
	}

	body, err := p.RenderBody(form.Name, form.LinkURL)
	if err != nil {
		return nil, err
	}

	form.Body = body

	p.logger.Info("mail form prepared",
		slog.Bool("default_photo", form.DefaultPhoto),
		slog.Bool("link", form.LinkURL != ""),
	)

	return form, nil
}

// resolvePhoto fetches the user's photo into dir, substituting the bundled
// default when there is none.
func (p *Pipeline) resolvePhoto(ctx context.Context, g Graph, dir string, form *FormData) error {
	photo, err := g.ProfilePhoto(ctx, graph.SelfUserID, filepath.Join(dir, photoBaseName))
	if err != nil {
		return err
	}

	if !photo.Empty() && photo.LocalPath != "" {
		form.ProfilePic = photo.LocalPath
		form.PhotoData = photo.Data
		form.PhotoContentType = photo.ContentType

		return nil
	}

	path, data, err := DefaultPhoto(dir)
	if err != nil {
		return err
	}

	p.logger.Info("using default profile photo")

	form.ProfilePic = path
	form.PhotoData = data
	form.PhotoContentType = "image/png"
	form.DefaultPhoto = true

	return nil
}

// RenderBody renders the HTML email body. An empty link leaves the body
// without any link reference.
func (p *Pipeline) RenderBody(name string, link graph.SharingURL) (string, error) {
	var buf bytes.Buffer

	data := struct {
		Name    string
		LinkURL string
	}{Name: name, LinkURL: link.String()}

	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailflow: rendering email body: %w", err)
	}

	return buf.String(), nil
}

// SendRequest is the mail form as submitted. Recipients is a
// semicolon-delimited address list.
type SendRequest struct {
	Subject    string
	Recipients string
	Body       string
	Sender     string
	ProfilePic string // optional attachment; must lie inside the session's photo directory
}

// SendOutcome is what the sent page displays.
type SendOutcome struct {
	Sender       string
	Recipients   []string
	Subject      string
	BodyLength   int
	ProfilePic   string
	StatusCode   int
	ResponseJSON string // pretty-printed response, empty when the body was empty
}

// OK reports whether Graph accepted the message.
func (o *SendOutcome) OK() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Send validates req, builds the message with the photo attached, and sends
// it on behalf of sessionID. Missing fields fail before any file is read or
// request made. A non-2xx send is reported through the outcome, not as an
// error.
func (p *Pipeline) Send(ctx context.Context, g Graph, sessionID string, req SendRequest) (*SendOutcome, error) {
	dir, err := p.SessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	recipients := graph.SplitRecipients(req.Recipients)

	msg, err := graph.NewMessage(req.Subject, recipients, req.Body, nil)
	if err != nil {
		return nil, err
	}

	msg.SaveToSentItems = p.opts.SaveToSentItems

	if req.ProfilePic != "" {
		if !localfile.Within(dir, req.ProfilePic) {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentPath, req.ProfilePic)
		}

		att, attErr := graph.LoadAttachment(req.ProfilePic)
		if attErr != nil {
			return nil, fmt.Errorf("mailflow: attaching photo: %w", attErr)
		}

		msg.Attachments = append(msg.Attachments, att)
	}

	result, err := g.SendMail(ctx, msg)
	if err != nil {
		return nil, err
	}

	outcome := &SendOutcome{
		Sender:       req.Sender,
		Recipients:   recipients,
		Subject:      req.Subject,
		BodyLength:   len(req.Body),
		ProfilePic:   req.ProfilePic,
		StatusCode:   result.StatusCode,
		ResponseJSON: prettyJSON(result.Body),
	}

	// The mail is out; a client that hangs up now must not lose the row.
	p.record(context.WithoutCancel(ctx), outcome, len(msg.Attachments))

	return outcome, nil
}

// record writes the outcome to history. Failures are logged only: the mail
// has already been sent.
func (p *Pipeline) record(ctx context.Context, o *SendOutcome, attachments int) {
	if p.recorder == nil {
		return
	}

	_, err := p.recorder.Record(ctx, history.Entry{
		Sender:      o.Sender,
		Recipients:  o.Recipients,
		Subject:     o.Subject,
		Attachments: attachments,
		BodyLength:  o.BodyLength,
		StatusCode:  o.StatusCode,
	})
	if err != nil {
		p.logger.Warn("failed to record send", slog.String("error", err.Error()))
	}
}

// prettyJSON indents a JSON body for display. Empty bodies (sendMail answers
// 202 with no content) yield ""; non-JSON bodies are returned as-is.
func prettyJSON(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}

	return buf.String()
}

// isFatal reports whether err must abort the pipeline instead of degrading.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, graph.ErrUnauthenticated) || ctx.Err() != nil
}
