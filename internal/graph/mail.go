package graph

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tonimelisma/graph-mailer/internal/localfile"
)

// Body content types accepted by sendMail.
const (
	BodyHTML = "HTML"
	BodyText = "Text"
)

const fileAttachmentODataType = "#microsoft.graph.fileAttachment"

// Attachment is a file attachment, already base64-encoded.
type Attachment struct {
	Name         string
	ContentBytes string // standard base64
	ContentType  string
}

// Message is an outgoing mail. Recipients keep their order and are not
// deduplicated.
type Message struct {
	Subject         string
	Body            string
	BodyType        string // BodyHTML when empty
	Recipients      []string
	Attachments     []Attachment
	SaveToSentItems bool
}

// SendResult carries the sendMail response verbatim for display.
type SendResult struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the send was accepted (2xx).
func (r *SendResult) OK() bool {
	return isSuccess(r.StatusCode)
}

// SplitRecipients splits a semicolon-delimited address list, trimming
// whitespace and dropping empty entries. Order and duplicates are kept.
func SplitRecipients(list string) []string {
	parts := strings.Split(list, ";")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// LoadAttachment reads path fully and encodes it as an Attachment named
// after the file's base name.
func LoadAttachment(path string) (Attachment, error) {
	encoded, err := localfile.ReadBase64(path)
	if err != nil {
		return Attachment{}, err
	}

	name := filepath.Base(path)

	return Attachment{
		Name:         name,
		ContentBytes: encoded,
		ContentType:  ContentTypeFor(name),
	}, nil
}

// NewMessage validates the required fields and then loads every attachment
// path in order. Validation happens before any file is read.
func NewMessage(subject string, recipients []string, body string, attachmentPaths []string) (*Message, error) {
	msg := &Message{
		Subject:         subject,
		Body:            body,
		BodyType:        BodyHTML,
		Recipients:      recipients,
		SaveToSentItems: true,
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	for _, p := range attachmentPaths {
		att, err := LoadAttachment(p)
		if err != nil {
			return nil, err
		}

		msg.Attachments = append(msg.Attachments, att)
	}

	return msg, nil
}

// Validate reports the first missing required field as a *MissingFieldError.
func (m *Message) Validate() error {
	switch {
	case m == nil:
		return &MissingFieldError{Field: "message"}
	case strings.TrimSpace(m.Subject) == "":
		return &MissingFieldError{Field: "subject"}
	case len(m.Recipients) == 0:
		return &MissingFieldError{Field: "recipients"}
	case strings.TrimSpace(m.Body) == "":
		return &MissingFieldError{Field: "body"}
	}

	for _, r := range m.Recipients {
		if strings.TrimSpace(r) == "" {
			return &MissingFieldError{Field: "recipients"}
		}
	}

	return nil
}

// sendMailRequest mirrors the Graph sendMail JSON body. Attachments belong
// inside the message resource.
type sendMailRequest struct {
	Message         messagePayload `json:"message"`
	SaveToSentItems bool           `json:"saveToSentItems"`
}

type messagePayload struct {
	Subject      string                  `json:"subject"`
	Body         itemBody                `json:"body"`
	ToRecipients []recipientPayload      `json:"toRecipients"`
	Attachments  []fileAttachmentPayload `json:"attachments,omitempty"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipientPayload struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type fileAttachmentPayload struct {
	ODataType    string `json:"@odata.type"` //nolint:tagliatelle // OData annotation key
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// payload converts m to the wire format.
func (m *Message) payload() sendMailRequest {
	bodyType := m.BodyType
	if bodyType == "" {
		bodyType = BodyHTML
	}

	recipients := make([]recipientPayload, 0, len(m.Recipients))
	for _, addr := range m.Recipients {
		recipients = append(recipients, recipientPayload{EmailAddress: emailAddress{Address: addr}})
	}

	var attachments []fileAttachmentPayload
	for _, a := range m.Attachments {
		attachments = append(attachments, fileAttachmentPayload{
			ODataType:    fileAttachmentODataType,
			Name:         a.Name,
			ContentType:  a.ContentType,
			ContentBytes: a.ContentBytes,
		})
	}

	return sendMailRequest{
		Message: messagePayload{
			Subject:      m.Subject,
			Body:         itemBody{ContentType: bodyType, Content: m.Body},
			ToRecipients: recipients,
			Attachments:  attachments,
		},
		SaveToSentItems: m.SaveToSentItems,
	}
}

// SendMail sends msg as the signed-in user with a single POST. Missing
// required fields fail with a *MissingFieldError before any network I/O.
// The response status and body are returned verbatim; a non-2xx status is
// not an error.
func (c *Client) SendMail(ctx context.Context, msg *Message) (*SendResult, error) {
	if c == nil || c.token == nil {
		return nil, &MissingFieldError{Field: "session"}
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	c.logger.Info("sending mail",
		slog.Int("recipients", len(msg.Recipients)),
		slog.Int("attachments", len(msg.Attachments)),
		slog.Int("body_length", len(msg.Body)),
	)

	resp, err := c.doJSON(ctx, http.MethodPost, "/me/sendMail", msg.payload())
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		c.logger.Warn("send mail rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", resp.RequestID()),
		)
	}

	return &SendResult{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
