// Package history keeps a local ledger of sent mail in SQLite. It records
// what was sent and how each pipeline step ended; it never stores tokens,
// message bodies, or attachment contents.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/tonimelisma/graph-mailer/internal/localfile"
)

// DefaultLimit is the number of entries Recent returns for a non-positive limit.
const DefaultLimit = 20

// ErrClosed is returned by operations on a closed Ledger.
var ErrClosed = errors.New("history: ledger closed")

// Entry is one recorded send.
type Entry struct {
	ID          string
	SentAt      time.Time
	Sender      string
	Recipients  []string
	Subject     string
	Attachments int
	BodyLength  int
	StatusCode  int
}

// OK reports whether the send itself was accepted.
func (e *Entry) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// Ledger is the sends table. A single connection serializes writes. Close
// waits for in-flight Record and Recent calls.
type Ledger struct {
	mu     sync.RWMutex
	db     *sql.DB // nil once closed; guarded by mu
	logger *slog.Logger

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger database at dbPath and applies
// pending migrations. The parent directory is created with owner-only
// permissions.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), localfile.DirPerms); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history ledger open", slog.String("path", dbPath))

	return &Ledger{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Record inserts e. Empty ID and zero SentAt are filled in; the stored
// values are returned.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	if l == nil {
		return Entry{}, ErrClosed
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return Entry{}, ErrClosed
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.SentAt.IsZero() {
		e.SentAt = l.nowFunc()
	}

	if e.Recipients == nil {
		e.Recipients = []string{}
	}

	recipients, err := json.Marshal(e.Recipients)
	if err != nil {
		return Entry{}, fmt.Errorf("history: encoding recipients: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO sends
			(id, sent_at, sender, recipients, subject, attachments,
			 body_length, status_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SentAt.UnixNano(), e.Sender, string(recipients), e.Subject,
		e.Attachments, e.BodyLength, e.StatusCode,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("history: recording send %s: %w", e.ID, err)
	}

	l.logger.Debug("recorded send",
		slog.String("id", e.ID),
		slog.Int("status", e.StatusCode),
		slog.Int("recipients", len(e.Recipients)),
	)

	return e, nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if l == nil {
		return nil, ErrClosed
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, sent_at, sender, recipients, subject, attachments,
			body_length, status_code
			FROM sends ORDER BY sent_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying sends: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e          Entry
			sentAt     int64
			recipients string
		)

		if err := rows.Scan(&e.ID, &sentAt, &e.Sender, &recipients, &e.Subject,
			&e.Attachments, &e.BodyLength, &e.StatusCode); err != nil {
			return nil, fmt.Errorf("history: scanning send: %w", err)
		}

		if err := json.Unmarshal([]byte(recipients), &e.Recipients); err != nil {
			return nil, fmt.Errorf("history: decoding recipients for %s: %w", e.ID, err)
		}

		e.SentAt = time.Unix(0, sentAt)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating sends: %w", err)
	}

	return out, nil
}

// Close closes the database. Subsequent calls return ErrClosed.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil

	if err != nil {
		return fmt.Errorf("history: closing database: %w", err)
	}

	return nil
}
