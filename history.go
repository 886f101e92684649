package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graph-mailer/internal/history"
)

// subjectWidth caps the SUBJECT column in the history table.
const subjectWidth = 40

var errHistoryDisabled = errors.New("send history is disabled (history.enabled = false)")

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sends",
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "number of entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ledger, err := openLedger(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	if ledger == nil {
		return errHistoryDisabled
	}

	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			cc.Logger.Warn("closing send history", slog.String("error", closeErr.Error()))
		}
	}()

	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := ledger.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printHistoryJSON(cmd.OutOrStdout(), entries)
	}

	return printHistoryTable(cmd.OutOrStdout(), entries)
}

type historyJSON struct {
	ID          string    `json:"id"`
	SentAt      time.Time `json:"sent_at"`
	Sender      string    `json:"sender"`
	Recipients  []string  `json:"recipients"`
	Subject     string    `json:"subject"`
	Attachments int       `json:"attachments"`
	BodyLength  int       `json:"body_length"`
	StatusCode  int       `json:"status_code"`
}

func printHistoryJSON(w io.Writer, entries []history.Entry) error {
	out := make([]historyJSON, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, historyJSON{
			ID:          e.ID,
			SentAt:      e.SentAt,
			Sender:      e.Sender,
			Recipients:  e.Recipients,
			Subject:     e.Subject,
			Attachments: e.Attachments,
			BodyLength:  e.BodyLength,
			StatusCode:  e.StatusCode,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printHistoryTable(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		ew := &errWriter{w: w}
		ew.printf("No sends recorded.\n")

		return ew.err
	}

	rows := make([][]string, 0, len(entries))
	for i := range entries {
		e := &entries[i]

		status := strconv.Itoa(e.StatusCode)
		if !e.OK() {
			status += " FAILED"
		}

		rows = append(rows, []string{
			formatTime(e.SentAt),
			status,
			e.Sender,
			joinRecipients(e.Recipients),
			truncate(e.Subject, subjectWidth),
			strconv.Itoa(e.Attachments),
		})
	}

	return printTable(w, []string{"SENT", "STATUS", "FROM", "TO", "SUBJECT", "ATTACHMENTS"}, rows)
}
