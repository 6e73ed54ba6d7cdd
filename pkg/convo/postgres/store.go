// Package postgres provides a PostgreSQL-backed implementation of the
// [convo.Store] contract.
//
// The store owns a single [pgxpool.Pool]. [NewStore] runs [Migrate] so the
// conversations and messages tables always exist before first use.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	id, _ := store.CreateConversation(ctx, "Morning check-in")
//	_, _ = store.AppendMessage(ctx, id, convo.RoleUser, "I feel anxious today")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenwell/aria/pkg/convo"
)

// Compile-time interface check.
var _ convo.Store = (*Store)(nil)

const ddlConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT         PRIMARY KEY DEFAULT gen_random_uuid()::text,
    title      TEXT         NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id              TEXT         PRIMARY KEY DEFAULT gen_random_uuid()::text,
    conversation_id TEXT         NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
    role            TEXT         NOT NULL,
    text            TEXT         NOT NULL,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages (conversation_id, created_at);`

// Store is the PostgreSQL conversation store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("convo store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("convo store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("convo store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the conversations and messages tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlConversations, ddlMessages} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("convo store: apply ddl: %w", err)
		}
	}
	return nil
}

// CreateConversation implements [convo.Store].
func (s *Store) CreateConversation(ctx context.Context, title string) (string, error) {
	const q = `INSERT INTO conversations (title) VALUES ($1) RETURNING id`

	var id string
	if err := s.pool.QueryRow(ctx, q, title).Scan(&id); err != nil {
		return "", fmt.Errorf("convo store: create conversation: %w", err)
	}
	return id, nil
}

// AppendMessage implements [convo.Store].
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role convo.Role, text string) (string, error) {
	if !role.IsValid() {
		return "", fmt.Errorf("convo store: invalid role %q", role)
	}

	const q = `
		INSERT INTO messages (conversation_id, role, text)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id string
	if err := s.pool.QueryRow(ctx, q, conversationID, string(role), text).Scan(&id); err != nil {
		return "", fmt.Errorf("convo store: append message: %w", err)
	}
	return id, nil
}

// Messages returns all messages of a conversation in chronological order.
// The voice engine never reads history back; this exists for the history
// surfaces and for integration tests.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]convo.Message, error) {
	const q = `
		SELECT id, conversation_id, role, text, created_at
		FROM   messages
		WHERE  conversation_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("convo store: list messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (convo.Message, error) {
		var (
			m    convo.Message
			role string
		)
		if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Text, &m.CreatedAt); err != nil {
			return convo.Message{}, err
		}
		m.Role = convo.Role(role)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("convo store: scan messages: %w", err)
	}
	return msgs, nil
}

// Ping reports whether the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
