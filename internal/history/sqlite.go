package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS script_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    script      TEXT NOT NULL,
    event       TEXT NOT NULL,
    pid         INTEGER NOT NULL,
    exit_code   INTEGER NOT NULL,
    occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_script_events_script ON script_events(script, occurred_at);
`

// SQLiteSink persists run events into an embedded sqlite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the history database at path and
// ensures the schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// modernc sqlite is single-writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Record(ctx context.Context, ev Event) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO script_events (script, event, pid, exit_code, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		ev.Script, string(ev.Type), ev.PID, ev.ExitCode, occurred.UTC())
	if err != nil {
		return fmt.Errorf("record history event: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent events for a script, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, script string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT script, event, pid, exit_code, occurred_at FROM script_events
		 WHERE script = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`, script, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var ev Event
		var typ string
		if err := rows.Scan(&ev.Script, &typ, &ev.PID, &ev.ExitCode, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Type = EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
