package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/graph-mailer/internal/config"
	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/history"
	"github.com/tonimelisma/graph-mailer/internal/mailflow"
)

var _ mailflow.Recorder = (*history.Ledger)(nil)

// openLedger opens the send history, or returns nil when history is
// disabled. Callers close a non-nil ledger.
func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*history.Ledger, error) {
	if !cfg.History.Enabled {
		logger.Debug("send history disabled")
		return nil, nil //nolint:nilnil // nil ledger = history disabled
	}

	ledger, err := history.Open(ctx, cfg.History.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening send history: %w", err)
	}

	return ledger, nil
}

// newPipeline builds the mail pipeline from the [mail] section. ledger may be
// nil.
func newPipeline(cfg *config.Config, ledger *history.Ledger, logger *slog.Logger) (*mailflow.Pipeline, error) {
	// A nil *Ledger must not become a non-nil Recorder.
	var rec mailflow.Recorder
	if ledger != nil {
		rec = ledger
	}

	return mailflow.New(mailflow.Options{
		PhotoDir:        cfg.Mail.PhotoDir,
		UploadFolder:    cfg.Mail.UploadFolder,
		LinkType:        cfg.Mail.LinkType,
		SaveToSentItems: cfg.Mail.SaveToSentItems,
		TemplatePath:    cfg.Mail.Template,
	}, rec, logger)
}

// newGraphClient builds a Graph client authenticated by tok.
func newGraphClient(cfg *config.Config, httpClient *http.Client, tok graph.TokenSource, logger *slog.Logger) *graph.Client {
	return graph.NewClient(cfg.Graph.BaseURL, httpClient, tok, logger, cfg.Graph.ClientSKU)
}

// newAuthorizer builds the sign-in handshake from the [oauth] section.
func newAuthorizer(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *graph.Authorizer {
	return graph.NewAuthorizer(graph.AuthConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		Scopes:       cfg.OAuth.Scopes,
		Endpoint:     graph.AuthorityEndpoint(cfg.OAuth.AuthorityURL, cfg.OAuth.Tenant),
	}, httpClient, logger)
}
