package store

import (
	"context"
	"sync"

	"foneai-widget/internal/chat"
)

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]chat.Message
	// maxMessages bounds what is retained per session; 0 keeps everything.
	maxMessages int
}

func NewMemoryStore(maxMessages int) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string][]chat.Message),
		maxMessages: maxMessages,
	}
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msg)
	m.trimLocked(sessionID)
	return nil
}

func (m *MemoryStore) Messages(_ context.Context, sessionID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.sessions[sessionID]
	copyMsgs := make([]chat.Message, len(msgs))
	copy(copyMsgs, msgs)
	return copyMsgs, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) trimLocked(sessionID string) {
	if m.maxMessages <= 0 {
		return
	}
	msgs := m.sessions[sessionID]
	if len(msgs) > m.maxMessages {
		m.sessions[sessionID] = msgs[len(msgs)-m.maxMessages:]
	}
}
