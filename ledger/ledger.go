// Package ledger records flow estimation runs in a SQLite database.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timestampLayout is fixed width so that text order in created_at is time
// order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	image1      TEXT NOT NULL,
	image2      TEXT NOT NULL,
	output      TEXT NOT NULL,
	height      INTEGER NOT NULL DEFAULT 0,
	width       INTEGER NOT NULL DEFAULT 0,
	elapsed_ms  INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Status values stored with each run.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one ledger row.
type Run struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Image1    string    `json:"image1"`
	Image2    string    `json:"image2"`
	Output    string    `json:"output"`
	Height    int       `json:"height"`
	Width     int       `json:"width"`
	ElapsedMS int64     `json:"elapsedMs"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger is a handle on the run history database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Record inserts r, filling in ID and CreatedAt when unset, and returns the
// stored row.
func (l *Ledger) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if r.Status == "" {
		r.Status = StatusOK
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, model, image1, image2, output, height, width, elapsed_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Model, r.Image1, r.Image2, r.Output, r.Height, r.Width, r.ElapsedMS, r.Status, r.Error,
		r.CreatedAt.Format(timestampLayout))
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return r, nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, model, image1, image2, output, height, width, elapsed_ms, status, error, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.Model, &r.Image1, &r.Image2, &r.Output,
			&r.Height, &r.Width, &r.ElapsedMS, &r.Status, &r.Error, &created); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("run %s: bad timestamp %q: %w", r.ID, created, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
