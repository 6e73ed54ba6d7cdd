package convo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store]. Conversations do not survive a
// restart; it backs deployments without a database.
type MemoryStore struct {
	mu       sync.Mutex
	titles   map[string]string
	messages map[string][]Message
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		titles:   make(map[string]string),
		messages: make(map[string][]Message),
	}
}

// CreateConversation implements [Store].
func (s *MemoryStore) CreateConversation(_ context.Context, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.titles[id] = title
	s.messages[id] = nil
	return id, nil
}

// AppendMessage implements [Store].
func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, role Role, text string) (string, error) {
	if !role.IsValid() {
		return "", fmt.Errorf("convo: invalid role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[conversationID]; !ok {
		return "", fmt.Errorf("convo: conversation %q not found", conversationID)
	}
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg.ID, nil
}

// Messages returns a copy of the messages in conversationID, in append
// order.
func (s *MemoryStore) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out
}

// Title returns the title the conversation was created with.
func (s *MemoryStore) Title(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[conversationID]
}
