// Package journal keeps a durable record of coordination events.
//
// The journal is an append-only SQLite log under .muster/journal.db. The
// watchdog and recovery write to it; `mu history` reads it. Callers treat
// append failures as non-fatal: losing a journal entry must never abort
// recovery of a real agent.
package journal

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

// Kind classifies a journal entry.
type Kind string

const (
	AgentCreated    Kind = "agent_created"
	AgentClosed     Kind = "agent_closed"
	AgentStalled    Kind = "agent_stalled"
	AgentCrashed    Kind = "agent_crashed"
	AgentRemoved    Kind = "agent_removed"
	LocksReleased   Kind = "locks_released"
	NotifySent      Kind = "notify_sent"
	NotifyFailed    Kind = "notify_failed"
	WatchdogStarted Kind = "watchdog_started"
	WatchdogStopped Kind = "watchdog_stopped"
)

// Entry is one recorded event.
type Entry struct {
	ID        string
	Kind      Kind
	Agent     string
	Detail    string
	CreatedAt time.Time
}

// Journal is an append-only event log backed by SQLite.
type Journal struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		agent      TEXT NOT NULL,
		detail     TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent);
`

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// WAL lets the watchdog append while a CLI reader is mid-query; the
	// busy timeout covers the brief writer-vs-writer window.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring journal: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one event.
func (j *Journal) Append(ctx context.Context, kind Kind, agent, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, agent, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(kind), agent, detail,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first. A non-positive limit
// defaults to 50; the cap is 1000.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, "", limit)
}

// RecentForAgent returns the newest entries for one agent, newest first.
func (j *Journal) RecentForAgent(ctx context.Context, agent string, limit int) ([]Entry, error) {
	return j.query(ctx, agent, limit)
}

func (j *Journal) query(ctx context.Context, agent string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	q := `
		SELECT id, kind, agent, detail, created_at
		FROM events
	`
	args := []any{}
	if agent != "" {
		q += ` WHERE agent = ?`
		args = append(args, agent)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, createdAt string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &kind, &e.Agent, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Kind = Kind(kind)
		e.Detail = detail.String
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the cutoff and reports how many went.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	result, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}
