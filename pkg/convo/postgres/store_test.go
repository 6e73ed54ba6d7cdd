package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenwell/aria/pkg/convo"
	"github.com/lumenwell/aria/pkg/convo/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if ARIA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ARIA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARIA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS messages",
		"DROP TABLE IF EXISTS conversations",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			t.Fatalf("clean schema: %v", err)
		}
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestCreateAndAppend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, "Morning check-in")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if id == "" {
		t.Fatal("CreateConversation returned empty id")
	}

	if _, err := store.AppendMessage(ctx, id, convo.RoleUser, "I feel anxious today"); err != nil {
		t.Fatalf("AppendMessage user: %v", err)
	}
	if _, err := store.AppendMessage(ctx, id, convo.RoleAssistant, "I hear you."); err != nil {
		t.Fatalf("AppendMessage assistant: %v", err)
	}

	msgs, err := store.Messages(ctx, id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != convo.RoleUser || msgs[0].Text != "I feel anxious today" {
		t.Errorf("first message = %+v, want user text", msgs[0])
	}
	if msgs[1].Role != convo.RoleAssistant || msgs[1].Text != "I hear you." {
		t.Errorf("second message = %+v, want assistant text", msgs[1])
	}
}

func TestAppendInvalidRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := store.AppendMessage(ctx, id, convo.Role("system"), "nope"); err == nil {
		t.Error("AppendMessage with invalid role succeeded, want error")
	}
}

func TestAppendToMissingConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendMessage(ctx, "no-such-conversation", convo.RoleUser, "hi"); err == nil {
		t.Error("AppendMessage to missing conversation succeeded, want error")
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
