package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenwell/aria/internal/observe"
	"github.com/lumenwell/aria/pkg/convo"
)

// Titler names a conversation from its first user utterance. Best-effort:
// a failed or absent titler falls back to a truncated utterance.
type Titler interface {
	Title(ctx context.Context, utterance string) (string, error)
}

const (
	// persistQueueDepth bounds the persistence backlog. Depth is per turn,
	// and turns take seconds, so the queue overflowing means the store is
	// badly wedged; jobs are then dropped with a log line rather than
	// blocking the conversation.
	persistQueueDepth = 16

	// persistTimeout bounds one persistence pass (create + two appends).
	persistTimeout = 15 * time.Second

	// fallbackTitleLen is how much of the first utterance becomes the title
	// when no titler is available.
	fallbackTitleLen = 48
)

// persistJob is one finalized turn awaiting persistence.
type persistJob struct {
	userText      string
	assistantText string
}

// bridge appends finalized turns to the conversation store, exactly once per
// response-done, independent of session teardown. A single worker goroutine
// preserves append order across turns; the session event loop only enqueues.
type bridge struct {
	store   convo.Store
	titler  Titler
	metrics *observe.Metrics

	// onCreated is invoked from the worker goroutine when the conversation
	// handle is created lazily. The session routes it back onto the event
	// loop before it reaches the caller.
	onCreated func(id string)

	queue chan persistJob
	done  chan struct{}

	mu             sync.Mutex
	conversationID string
	closed         bool
}

// newBridge creates a bridge writing into store. conversationID may be empty;
// the handle is then created lazily on the first persisted turn.
func newBridge(store convo.Store, titler Titler, conversationID string, metrics *observe.Metrics, onCreated func(id string)) *bridge {
	b := &bridge{
		store:          store,
		titler:         titler,
		metrics:        metrics,
		onCreated:      onCreated,
		queue:          make(chan persistJob, persistQueueDepth),
		done:           make(chan struct{}),
		conversationID: conversationID,
	}
	go b.run()
	return b
}

// conversation returns the current conversation handle, or "".
func (b *bridge) conversation() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversationID
}

// enqueue schedules one turn for persistence. Never blocks; a full queue or
// a closed bridge drops the job with a log line — a lost message must never
// wedge the conversation.
func (b *bridge) enqueue(userText, assistantText string) {
	if userText == "" && assistantText == "" {
		return
	}

	// The mutex spans the closed check and the send so a concurrent close
	// cannot close the queue in between them. The send never blocks, so
	// holding the lock across it is safe.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		slog.Warn("persistence bridge closed, dropping turn",
			"user_len", len(userText), "assistant_len", len(assistantText))
		return
	}

	select {
	case b.queue <- persistJob{userText: userText, assistantText: assistantText}:
	default:
		slog.Error("persistence queue full, dropping turn",
			"user_len", len(userText), "assistant_len", len(assistantText))
	}
}

// close stops accepting new jobs and lets the worker drain the backlog.
// It does not wait: persistence outlives the session on purpose.
func (b *bridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}

// run is the single persistence worker.
func (b *bridge) run() {
	defer close(b.done)
	for job := range b.queue {
		b.persist(job)
	}
}

// persist writes one turn: ensure the conversation exists, then append the
// user message, then the assistant message, in that order. Failed appends
// are logged and never retried here.
func (b *bridge) persist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	id, err := b.ensureConversation(ctx, job.userText)
	if err != nil {
		slog.Error("create conversation failed, dropping turn", "err", err)
		b.recordFailure(ctx)
		return
	}

	if job.userText != "" {
		if _, err := b.store.AppendMessage(ctx, id, convo.RoleUser, job.userText); err != nil {
			slog.Error("append user message failed", "conversation", id, "err", err)
			b.recordFailure(ctx)
		}
	}
	if job.assistantText != "" {
		if _, err := b.store.AppendMessage(ctx, id, convo.RoleAssistant, job.assistantText); err != nil {
			slog.Error("append assistant message failed", "conversation", id, "err", err)
			b.recordFailure(ctx)
		}
	}
}

func (b *bridge) recordFailure(ctx context.Context) {
	if b.metrics != nil {
		b.metrics.PersistFailures.Add(ctx, 1)
	}
}

// ensureConversation returns the existing handle or lazily creates one,
// titled from the first utterance.
func (b *bridge) ensureConversation(ctx context.Context, firstUtterance string) (string, error) {
	b.mu.Lock()
	id := b.conversationID
	b.mu.Unlock()
	if id != "" {
		return id, nil
	}

	id, err := b.store.CreateConversation(ctx, b.title(ctx, firstUtterance))
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.conversationID = id
	b.mu.Unlock()

	if b.onCreated != nil {
		b.onCreated(id)
	}
	return id, nil
}

// title names the conversation, preferring the titler and falling back to a
// truncated first utterance.
func (b *bridge) title(ctx context.Context, utterance string) string {
	if b.titler != nil {
		if t, err := b.titler.Title(ctx, utterance); err == nil && t != "" {
			return t
		} else if err != nil {
			slog.Warn("conversation titler failed, using fallback", "err", err)
		}
	}
	// Truncate on runes: a byte slice could split a multi-byte character.
	if r := []rune(utterance); len(r) > fallbackTitleLen {
		return string(r[:fallbackTitleLen])
	}
	return utterance
}
