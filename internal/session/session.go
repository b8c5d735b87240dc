// Package session persists chat history per conversation session.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSessionNotFound is returned when a session has no stored messages.
var ErrSessionNotFound = errors.New("session not found")

// Message is one chat turn entry. SQL is only set on assistant messages
// that were produced from a translated statement.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SQL       string    `json:"sql,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Open returns the store for the configured path. An empty path selects
// the in-memory store, which the test profile uses by default.
func Open(ctx context.Context, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(ctx, path)
}

type Store interface {
	AppendMessage(ctx context.Context, message Message) (Message, error)
	// ListMessages returns the full history in insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ClearSession(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}
