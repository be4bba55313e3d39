// Package history keeps a SQLite log of completed annotation runs. It is
// separate from session persistence: a run is recorded once when it finishes,
// whether or not the report could be delivered.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so finished_at sorts lexicographically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one finished run
type Entry struct {
	ID            int64     `json:"id"`
	Annotator     string    `json:"annotator"`
	RootDirectory string    `json:"root_directory"`
	Total         int       `json:"total"`
	Annotated     int       `json:"annotated"`
	Ignored       int       `json:"ignored"`
	Delivered     bool      `json:"delivered"`
	DeliveryError string    `json:"delivery_error,omitempty"`
	ReportName    string    `json:"report_name"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Store is a SQLite (WAL mode) history database
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at dbPath
func Open(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("history db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS completions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		annotator      TEXT NOT NULL,
		root_directory TEXT NOT NULL DEFAULT '',
		total          INTEGER NOT NULL DEFAULT 0,
		annotated      INTEGER NOT NULL DEFAULT 0,
		ignored        INTEGER NOT NULL DEFAULT 0,
		delivered      INTEGER NOT NULL DEFAULT 0,
		delivery_error TEXT NOT NULL DEFAULT '',
		report_name    TEXT NOT NULL DEFAULT '',
		finished_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_completions_finished ON completions(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an entry and returns its id
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO completions (annotator, root_directory, total, annotated, ignored, delivered, delivery_error, report_name, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Annotator, e.RootDirectory, e.Total, e.Annotated, e.Ignored,
		boolToInt(e.Delivered), e.DeliveryError, e.ReportName,
		e.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert completion: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit entries, newest first. A limit of 0 or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, annotator, root_directory, total, annotated, ignored, delivered, delivery_error, report_name, finished_at
		FROM completions ORDER BY finished_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var delivered int
		var finishedAt string
		if err := rows.Scan(&e.ID, &e.Annotator, &e.RootDirectory, &e.Total, &e.Annotated, &e.Ignored,
			&delivered, &e.DeliveryError, &e.ReportName, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		e.Delivered = delivered != 0
		if t, err := time.Parse(timeLayout, finishedAt); err == nil {
			e.FinishedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
