package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps chat history in a local SQLite database so sessions
// survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the session database at path and runs
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session database path is required")
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent chat turns.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate session database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, message Message) (Message, error) {
	if strings.TrimSpace(message.SessionID) == "" {
		return Message{}, fmt.Errorf("session id is required")
	}
	if message.Role != RoleUser && message.Role != RoleAssistant {
		return Message{}, fmt.Errorf("unknown message role %q", message.Role)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
INSERT INTO messages (session_id, user_id, role, content, sql_text, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		message.SessionID,
		message.UserID,
		message.Role,
		message.Content,
		message.SQL,
		message.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("message id: %w", err)
	}
	message.ID = id
	return message, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	return s.queryMessages(ctx, `
SELECT id, session_id, user_id, role, content, sql_text, created_at
FROM messages
WHERE session_id = ?
ORDER BY id ASC`, sessionID)
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.ListMessages(ctx, sessionID)
	}
	messages, err := s.queryMessages(ctx, `
SELECT id, session_id, user_id, role, content, sql_text, created_at
FROM messages
WHERE session_id = ?
ORDER BY id DESC
LIMIT `+fmt.Sprintf("%d", limit), sessionID)
	if err != nil {
		return nil, err
	}
	// Flip back to oldest-first for prompt assembly.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLiteStore) ClearSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var message Message
		var createdAt string
		if err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.UserID,
			&message.Role,
			&message.Content,
			&message.SQL,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse message timestamp: %w", err)
		}
		message.CreatedAt = parsed
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return messages, nil
}
