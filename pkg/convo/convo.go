// Package convo defines the conversation store contract the voice engine
// persists into. The engine only ever creates a conversation and appends
// messages; reading history back is the concern of other surfaces.
package convo

import (
	"context"
	"time"
)

// Role identifies the author of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one persisted conversation entry.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Text           string
	CreatedAt      time.Time
}

// Store is the external conversation store consumed by the persistence
// bridge. No transactional guarantee is required beyond per-call
// success/failure.
type Store interface {
	// CreateConversation creates a new conversation and returns its ID.
	// The title may be empty.
	CreateConversation(ctx context.Context, title string) (string, error)

	// AppendMessage appends one message to an existing conversation and
	// returns the message ID.
	AppendMessage(ctx context.Context, conversationID string, role Role, text string) (string, error)
}
