// Package mock provides an in-memory [convo.Store] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenwell/aria/pkg/convo"
)

// Compile-time assertion that Store satisfies the convo interface.
var _ convo.Store = (*Store)(nil)

// Store is an in-memory conversation store. All methods are safe for
// concurrent use. Tests can inject failures via CreateErr and AppendErr and
// inspect everything written.
type Store struct {
	// CreateErr, when non-nil, fails every CreateConversation call.
	CreateErr error

	// AppendErr, when non-nil, fails every AppendMessage call.
	AppendErr error

	mu       sync.Mutex
	nextID   int
	titles   map[string]string
	messages map[string][]convo.Message
}

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{
		titles:   make(map[string]string),
		messages: make(map[string][]convo.Message),
	}
}

// CreateConversation implements [convo.Store].
func (s *Store) CreateConversation(_ context.Context, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	s.nextID++
	id := fmt.Sprintf("conv-%d", s.nextID)
	s.titles[id] = title
	s.messages[id] = nil
	return id, nil
}

// AppendMessage implements [convo.Store].
func (s *Store) AppendMessage(_ context.Context, conversationID string, role convo.Role, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AppendErr != nil {
		return "", s.AppendErr
	}
	if _, ok := s.messages[conversationID]; !ok {
		return "", fmt.Errorf("mock store: conversation %q not found", conversationID)
	}
	s.nextID++
	msg := convo.Message{
		ID:             fmt.Sprintf("msg-%d", s.nextID),
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg.ID, nil
}

// Messages returns a copy of the messages appended to conversationID, in
// append order.
func (s *Store) Messages(conversationID string) []convo.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]convo.Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out
}

// Title returns the title the conversation was created with.
func (s *Store) Title(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[conversationID]
}

// Conversations returns the number of conversations created.
func (s *Store) Conversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
