// Package store persists finished mission sessions to SQLite. The engine's
// working set stays in memory; this archive is the durability boundary for
// completed missions only.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
	"github.com/thoretheking/Junosixteen-sub000/internal/mission"
)

// ArchivedSession is one finished mission as persisted.
type ArchivedSession struct {
	SessionID  string
	UserID     string
	Level      int
	Success    bool
	Points     int
	Lives      int
	History    []mission.AttemptRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// Archive is the SQLite-backed session archive.
type Archive struct {
	db   *sql.DB
	path string
}

// Open initializes the archive database, creating it if needed.
func Open(path string) (*Archive, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	// Single writer keeps SQLite happy under concurrent archival.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set journal_mode=WAL: %v", err)
	}

	a := &Archive{db: db, path: path}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS finished_sessions (
    session_id  TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    level       INTEGER NOT NULL,
    success     INTEGER NOT NULL,
    points      INTEGER NOT NULL,
    lives       INTEGER NOT NULL,
    history     TEXT NOT NULL,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_finished_sessions_user ON finished_sessions(user_id);
`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate archive schema: %w", err)
	}
	return nil
}

// Archive persists one finished session. Re-archiving the same session id
// replaces the previous row, so archival is idempotent.
func (a *Archive) Archive(ctx context.Context, s ArchivedSession) error {
	history, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
INSERT OR REPLACE INTO finished_sessions
    (session_id, user_id, level, success, points, lives, history, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.UserID, s.Level, boolToInt(s.Success), s.Points, s.Lives,
		string(history), s.StartedAt.UnixMilli(), s.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("archive session %s: %w", s.SessionID, err)
	}
	logging.Get(logging.CategoryStore).Info("archived session %s (success=%v, points=%d)", s.SessionID, s.Success, s.Points)
	return nil
}

// ListFinished returns a user's archived sessions, newest first.
func (a *Archive) ListFinished(ctx context.Context, userID string) ([]ArchivedSession, error) {
	rows, err := a.db.QueryContext(ctx, `
SELECT session_id, user_id, level, success, points, lives, history, started_at, finished_at
FROM finished_sessions WHERE user_id = ? ORDER BY finished_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list finished sessions: %w", err)
	}
	defer rows.Close()

	var out []ArchivedSession
	for rows.Next() {
		var s ArchivedSession
		var success int
		var history string
		var startedMs, finishedMs int64
		if err := rows.Scan(&s.SessionID, &s.UserID, &s.Level, &success, &s.Points, &s.Lives,
			&history, &startedMs, &finishedMs); err != nil {
			return nil, fmt.Errorf("scan archived session: %w", err)
		}
		s.Success = success != 0
		if err := json.Unmarshal([]byte(history), &s.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", s.SessionID, err)
		}
		s.StartedAt = time.UnixMilli(startedMs)
		s.FinishedAt = time.UnixMilli(finishedMs)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
