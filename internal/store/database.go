package store

import (
	"context"
	"fmt"
	"time"

	"foneai-widget/internal/chat"
	"foneai-widget/internal/db"
)

// DatabaseStore archives transcripts in PostgreSQL or SQLite.
type DatabaseStore struct {
	db *db.DB
	// maxMessages bounds what is retained per session; 0 keeps everything.
	maxMessages int
}

// NewDatabaseStore creates a new database store
func NewDatabaseStore(database *db.DB, maxMessages int) *DatabaseStore {
	return &DatabaseStore{db: database, maxMessages: maxMessages}
}

// Append stores msg after the session's last message. The sequence number is
// assigned inside the insert so it never depends on a prior read.
func (ds *DatabaseStore) Append(ctx context.Context, sessionID string, msg chat.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := ds.db.Rebind(`
		INSERT INTO transcript_messages (session_id, seq, role, text, created_at_ms)
		SELECT CAST(? AS TEXT), COALESCE(MAX(seq), 0) + 1, CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS BIGINT)
		FROM transcript_messages
		WHERE session_id = ?
	`)

	_, err := ds.db.ExecContext(ctx, query, sessionID, string(msg.Role), msg.Text, msg.CreatedAt.UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if ds.maxMessages > 0 {
		if err := ds.trim(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// Messages returns the session's transcript oldest first.
func (ds *DatabaseStore) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := ds.db.Rebind(`
		SELECT role, text, created_at_ms
		FROM transcript_messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`)

	rows, err := ds.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	defer rows.Close()

	msgs := []chat.Message{}
	for rows.Next() {
		var (
			m    chat.Message
			role string
			ms   int64
		)
		if err := rows.Scan(&role, &m.Text, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = chat.Role(role)
		m.CreatedAt = time.UnixMilli(ms)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return msgs, nil
}

// Delete removes every message of a session
func (ds *DatabaseStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := ds.db.Rebind(`DELETE FROM transcript_messages WHERE session_id = ?`)
	if _, err := ds.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	return nil
}

func (ds *DatabaseStore) trim(ctx context.Context, sessionID string) error {
	query := ds.db.Rebind(`
		DELETE FROM transcript_messages
		WHERE session_id = ?
		AND seq <= (SELECT MAX(seq) FROM transcript_messages WHERE session_id = ?) - ?
	`)
	if _, err := ds.db.ExecContext(ctx, query, sessionID, sessionID, ds.maxMessages); err != nil {
		return fmt.Errorf("failed to trim transcript: %w", err)
	}
	return nil
}
