package chat

import (
	"context"
	"time"
)

// Role tells a surface how to style a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAI    Role = "ai"
	RoleError Role = "error"
)

// Message is one transcript entry. Messages are never modified once appended.
type Message struct {
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps transcripts keyed by session id. Messages returns them oldest first.
type Store interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	Delete(ctx context.Context, sessionID string) error
}
