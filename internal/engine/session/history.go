package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// HistoryStore persists conversation turns in SQLite, keyed by session.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (or creates) the history database at path.
func OpenHistoryStore(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initHistorySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func initHistorySchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS turns (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		video_id   TEXT NOT NULL,
		question   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS turns_session ON turns (session_id, id)`)
	return err
}

// Close closes the database.
func (h *HistoryStore) Close() error { return h.db.Close() }

// Append stores one turn.
func (h *HistoryStore) Append(ctx context.Context, sessionID string, t Turn) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, video_id, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(t.VideoID), t.Question, t.Answer, t.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// List returns a session's turns, oldest first.
func (h *HistoryStore) List(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT video_id, question, answer, created_at FROM turns WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t       Turn
			videoID string
			created string
		)
		if err := rows.Scan(&videoID, &t.Question, &t.Answer, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		t.VideoID = sources.VideoID(videoID)
		t.At, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Clear deletes every turn of a session.
func (h *HistoryStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	return nil
}
