package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graph-mailer/internal/config"
	"github.com/tonimelisma/graph-mailer/internal/mailflow"
	"github.com/tonimelisma/graph-mailer/internal/session"
)

// errNoAccessToken is returned by send when no bearer token was provided.
var errNoAccessToken = errors.New("no access token: set " + config.EnvAccessToken)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run the mail pipeline once with a bearer token from the environment",
		Long: `Run the whole pipeline without a browser: read the profile, fetch and upload
the profile photo, create a sharing link, and send the mail.

The access token is read from ` + config.EnvAccessToken + ` and is never stored.`,
		RunE: runSend,
	}

	cmd.Flags().String("to", "", "recipients, separated by ;")
	cmd.Flags().String("subject", mailflow.DefaultSubject, "mail subject")
	cmd.Flags().String("body-file", "", "HTML body to send instead of the built-in template (- for stdin)")
	cmd.Flags().Bool("no-attach", false, "do not attach the profile photo")

	if err := cmd.MarkFlagRequired("to"); err != nil {
		panic(err)
	}

	return cmd
}

func runSend(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx, _ := shutdownContexts(cmd.Context(), cc.Logger)

	if cc.Env.AccessToken == "" {
		return errNoAccessToken
	}

	to, _ := cmd.Flags().GetString("to")
	subject, _ := cmd.Flags().GetString("subject")
	bodyFile, _ := cmd.Flags().GetString("body-file")
	noAttach, _ := cmd.Flags().GetBool("no-attach")

	ledger, err := openLedger(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	if ledger != nil {
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				cc.Logger.Warn("closing send history", slog.String("error", closeErr.Error()))
			}
		}()
	}

	pipeline, err := newPipeline(cc.Cfg, ledger, cc.Logger)
	if err != nil {
		return err
	}

	sess := session.FromToken(cc.Env.AccessToken)
	client := newGraphClient(cc.Cfg, newHTTPClient(cc.Cfg), sess, cc.Logger)

	defer func() {
		if discardErr := pipeline.Discard(sess.ID()); discardErr != nil {
			cc.Logger.Warn("removing cached photo", slog.String("error", discardErr.Error()))
		}
	}()

	form, err := pipeline.Prepare(ctx, client, sess.ID())
	if err != nil {
		return err
	}

	body := form.Body
	if bodyFile != "" {
		if body, err = readBody(bodyFile, cmd.InOrStdin()); err != nil {
			return err
		}
	}

	req := mailflow.SendRequest{
		Subject:    subject,
		Recipients: to,
		Body:       body,
		Sender:     form.Email,
		ProfilePic: form.ProfilePic,
	}

	if noAttach {
		req.ProfilePic = ""
	}

	outcome, err := pipeline.Send(ctx, client, sess.ID(), req)
	if err != nil {
		return err
	}

	if err := printSendOutcome(cmd.OutOrStdout(), outcome, form, cc.Flags.JSON); err != nil {
		return err
	}

	if !outcome.OK() {
		return fmt.Errorf("mail not sent: Microsoft Graph answered HTTP %d", outcome.StatusCode)
	}

	return nil
}

// readBody reads the body from path, or from stdin when path is "-".
func readBody(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(data), nil
}

type sendJSON struct {
	Sender       string   `json:"sender"`
	Recipients   []string `json:"recipients"`
	Subject      string   `json:"subject"`
	BodyLength   int      `json:"body_length"`
	Attachment   string   `json:"attachment,omitempty"`
	DefaultPhoto bool     `json:"default_photo"`
	UploadStatus int      `json:"upload_status,omitempty"`
	Linked       bool     `json:"linked"`
	StatusCode   int      `json:"status_code"`
	Response     string   `json:"response,omitempty"`
}

func printSendOutcome(w io.Writer, o *mailflow.SendOutcome, form *mailflow.FormData, asJSON bool) error {
	if asJSON {
		out := sendJSON{
			Sender:       o.Sender,
			Recipients:   o.Recipients,
			Subject:      o.Subject,
			BodyLength:   o.BodyLength,
			Attachment:   o.ProfilePic,
			DefaultPhoto: form.DefaultPhoto,
			Linked:       form.LinkURL != "",
			StatusCode:   o.StatusCode,
			Response:     o.ResponseJSON,
		}

		if form.Upload != nil {
			out.UploadStatus = form.Upload.StatusCode
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	ew := &errWriter{w: w}

	ew.printf("From:        %s\n", o.Sender)
	ew.printf("To:          %s\n", joinRecipients(o.Recipients))
	ew.printf("Subject:     %s\n", o.Subject)
	ew.printf("Body length: %d\n", o.BodyLength)

	if o.ProfilePic != "" {
		ew.printf("Attachment:  %s\n", o.ProfilePic)
	}

	ew.printf("Linked:      %t\n", form.LinkURL != "")
	ew.printf("Status:      %d\n", o.StatusCode)

	if o.ResponseJSON != "" {
		ew.printf("\n%s\n", o.ResponseJSON)
	}

	return ew.err
}
