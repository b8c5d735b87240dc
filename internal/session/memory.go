package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and for ephemeral
// deployments where history does not need to survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]Message{}}
}

func (s *MemoryStore) AppendMessage(_ context.Context, message Message) (Message, error) {
	if strings.TrimSpace(message.SessionID) == "" {
		return Message{}, fmt.Errorf("session id is required")
	}
	if message.Role != RoleUser && message.Role != RoleAssistant {
		return Message{}, fmt.Errorf("unknown message role %q", message.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	message.ID = s.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	s.sessions[message.SessionID] = append(s.sessions[message.SessionID], message)
	return message, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.sessions[sessionID]
	messages := make([]Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *MemoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
