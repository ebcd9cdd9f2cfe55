// Package store is the deduplicated persistent store for received crash
// reports: one SQLite table, a unique event_id, parsed-field extraction for
// grouping, and a time-bounded sweep.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bugstr-dev/bugstr/internal/transportcodec"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: crash not found")

// Crash is one row of the crashes table.
type Crash struct {
	ID            int64
	EventID       string
	SenderPubkey  string
	SentAt        *time.Time
	ReceivedAt    time.Time
	AppName       string
	AppVersion    string
	ExceptionType string
	Message       string
	StackTrace    string
	RawContent    string
	Environment   string
	Release       string
}

// Group is one row of the grouping query: crashes bucketed by exception
// type.
type Group struct {
	ExceptionType string
	Count         int
	FirstSeen     time.Time
	LastSeen      time.Time
	AppVersions   string // comma-joined distinct list
}

// Store is a SQLite-backed crash report store. All access goes through a
// single mutex: the spec treats the store as owned by one async lock, held
// across exactly one database call per operation, never across several.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (creating if necessary) a SQLite database at path and
// ensures its schema exists.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS crashes (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id       TEXT NOT NULL UNIQUE,
			sender_pubkey  TEXT NOT NULL,
			sent_at        INTEGER,
			received_at    INTEGER NOT NULL,
			app_name       TEXT,
			app_version    TEXT,
			exception_type TEXT,
			message        TEXT,
			stack_trace    TEXT,
			raw_content    TEXT NOT NULL,
			environment    TEXT,
			release        TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_crashes_received_at ON crashes(received_at DESC);
		CREATE INDEX IF NOT EXISTS idx_crashes_exception_type ON crashes(exception_type);
		CREATE INDEX IF NOT EXISTS idx_crashes_app_version ON crashes(app_version);
		CREATE INDEX IF NOT EXISTS idx_crashes_sender_pubkey ON crashes(sender_pubkey);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes c using INSERT OR IGNORE semantics: a colliding event_id is
// a silent no-op, reported back as inserted=false rather than an error.
func (s *Store) Insert(ctx context.Context, c *Crash) (inserted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sentAt sql.NullInt64
	if c.SentAt != nil {
		sentAt = sql.NullInt64{Int64: c.SentAt.Unix(), Valid: true}
	}

	var exceptionType sql.NullString
	if c.ExceptionType != "" {
		exceptionType = sql.NullString{String: c.ExceptionType, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO crashes
			(event_id, sender_pubkey, sent_at, received_at, app_name, app_version,
			 exception_type, message, stack_trace, raw_content, environment, release)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.EventID, c.SenderPubkey, sentAt, c.ReceivedAt.Unix(),
		c.AppName, c.AppVersion, exceptionType, c.Message, c.StackTrace,
		c.RawContent, c.Environment, c.Release,
	)
	if err != nil {
		return false, fmt.Errorf("store: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert: %w", err)
	}
	return rows > 0, nil
}

var crashColumns = `id, event_id, sender_pubkey, sent_at, received_at, app_name, app_version,
	exception_type, message, stack_trace, raw_content, environment, release`

func scanCrash(row interface{ Scan(...any) error }) (*Crash, error) {
	var c Crash
	var sentAt sql.NullInt64
	var receivedAt int64
	var exceptionType sql.NullString
	err := row.Scan(&c.ID, &c.EventID, &c.SenderPubkey, &sentAt, &receivedAt,
		&c.AppName, &c.AppVersion, &exceptionType, &c.Message, &c.StackTrace,
		&c.RawContent, &c.Environment, &c.Release)
	if err != nil {
		return nil, err
	}
	c.ReceivedAt = time.Unix(receivedAt, 0).UTC()
	if sentAt.Valid {
		t := time.Unix(sentAt.Int64, 0).UTC()
		c.SentAt = &t
	}
	c.ExceptionType = exceptionType.String
	return &c, nil
}

// GetByID returns the crash with the given surrogate ID.
func (s *Store) GetByID(ctx context.Context, id int64) (*Crash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+crashColumns+" FROM crashes WHERE id = ?", id)
	c, err := scanCrash(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %d: %w", id, err)
	}
	return c, nil
}

// ListRecent returns up to limit crashes, most recently received first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Crash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+crashColumns+" FROM crashes ORDER BY received_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("store: list recent: %w", err)
	}
	defer rows.Close()

	var out []*Crash
	for rows.Next() {
		c, err := scanCrash(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list recent: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Groups aggregates stored crashes by exception type, ordered by count
// descending, limited to limit groups.
func (s *Store) Groups(ctx context.Context, limit int) ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT coalesce(exception_type, 'Unknown') AS exc,
		       COUNT(*),
		       MIN(received_at),
		       MAX(received_at),
		       GROUP_CONCAT(DISTINCT app_version)
		FROM crashes
		GROUP BY exc
		ORDER BY COUNT(*) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var first, last int64
		var versions sql.NullString
		if err := rows.Scan(&g.ExceptionType, &g.Count, &first, &last, &versions); err != nil {
			return nil, fmt.Errorf("store: groups: %w", err)
		}
		g.FirstSeen = time.Unix(first, 0).UTC()
		g.LastSeen = time.Unix(last, 0).UTC()
		g.AppVersions = versions.String
		out = append(out, g)
	}
	return out, rows.Err()
}

// Count returns the total number of stored crashes.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crashes").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// SweepOlderThan deletes every crash received before cutoff, returning the
// number of rows removed.
func (s *Store) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM crashes WHERE received_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("store: sweep: %w", err)
	}
	return result.RowsAffected()
}

// exceptionTokenRe matches a dot-qualified identifier ending in Exception,
// Error, or Warning — used by the heuristic fallback to pull an exception
// type out of free text when the content isn't JSON.
var exceptionTokenRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.]*(?:Exception|Error|Warning))\s*:`)

// ParseContent extracts the known crash fields from raw content. It first
// tries raw as a JSON object shaped like transportcodec.DirectPayload's
// crash field (or a bare CrashFields object, for chunk-reassembled
// payloads); on failure it falls back to a heuristic scan of raw's lines
// for an exception-type token, treating the whole input as the message.
func ParseContent(raw string) (fields transportcodec.CrashFields, sentAt *time.Time, exceptionType string) {
	var direct transportcodec.DirectPayload
	if err := json.Unmarshal([]byte(raw), &direct); err == nil && direct.Crash.Message != "" {
		kf := direct.Crash
		if kf.Timestamp > 0 {
			t := time.Unix(kf.Timestamp, 0).UTC()
			sentAt = &t
		}
		exceptionType = extractExceptionType(kf.Message)
		if exceptionType == "" {
			exceptionType = extractExceptionType(kf.Stack)
		}
		return kf, sentAt, exceptionType
	}

	var kf transportcodec.CrashFields
	if err := json.Unmarshal([]byte(raw), &kf); err == nil {
		if kf.Timestamp > 0 {
			t := time.Unix(kf.Timestamp, 0).UTC()
			sentAt = &t
		}
		exceptionType = extractExceptionType(kf.Message)
		if exceptionType == "" {
			exceptionType = extractExceptionType(kf.Stack)
		}
		return kf, sentAt, exceptionType
	}

	exceptionType = extractExceptionType(raw)
	kf.Message = raw
	return kf, nil, exceptionType
}

// extractExceptionType scans text line by line for the first token ending
// in Exception/Error/Warning immediately before a colon, returning its last
// dot-separated segment.
func extractExceptionType(text string) string {
	for _, line := range strings.Split(text, "\n") {
		caps := exceptionTokenRe.FindStringSubmatch(line)
		if caps == nil {
			continue
		}
		token := caps[1]
		if idx := strings.LastIndex(token, "."); idx >= 0 {
			return token[idx+1:]
		}
		return token
	}
	return ""
}

// NewCrash builds a Crash ready for Insert from an unwrapped event's raw
// content and envelope metadata.
func NewCrash(eventID, senderPubkey, rawContent string, receivedAt time.Time) *Crash {
	fields, sentAt, exceptionType := ParseContent(rawContent)
	return &Crash{
		EventID:       eventID,
		SenderPubkey:  senderPubkey,
		SentAt:        sentAt,
		ReceivedAt:    receivedAt,
		AppName:       fields.AppName,
		AppVersion:    fields.AppVersion,
		ExceptionType: exceptionType,
		Message:       fields.Message,
		StackTrace:    fields.Stack,
		RawContent:    rawContent,
		Environment:   fields.Environment,
		Release:       fields.Release,
	}
}
