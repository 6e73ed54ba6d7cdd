// Package session keeps a realtime voice session alive: it owns the session
// lifecycle, reconnects with exponential backoff when the connection drops,
// and carries the conversation handle across reconnects so one voice session
// stays one conversation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenwell/aria/internal/observe"
	"github.com/lumenwell/aria/pkg/realtime"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Runner owns a sequence of [realtime.Session] attempts. Each attempt gets a
// fresh session and therefore a fresh credential; the conversation handle
// from the first attempt is reused by every later one.
//
// Callers obtain the initial connection via [Runner.Connect], then call
// [Runner.Monitor] to start a background goroutine that reconnects on
// disconnection. All methods are safe for concurrent use.
type Runner struct {
	base       realtime.Config
	newSession func(realtime.Config) *realtime.Session
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *observe.Metrics

	mu             sync.Mutex
	sess           *realtime.Session
	conversationID string

	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{} // signalled when a connection is lost
}

// RunnerConfig configures a [Runner].
type RunnerConfig struct {
	// Base is the session configuration template. The runner manages the
	// ConversationID field and wraps the OnDisconnect and
	// OnConversationCreated callbacks; everything else passes through.
	Base realtime.Config

	// MaxRetries is the maximum number of reconnection attempts per drop
	// before giving up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff between retries. Doubles each attempt
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// Metrics records reconnect attempts and session counts. May be nil.
	Metrics *observe.Metrics

	// NewSession overrides session construction, for tests. Defaults to
	// [realtime.NewSession].
	NewSession func(realtime.Config) *realtime.Session
}

// NewRunner creates a [Runner] with the given configuration.
func NewRunner(cfg RunnerConfig) *Runner {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	newSession := cfg.NewSession
	if newSession == nil {
		newSession = realtime.NewSession
	}
	return &Runner{
		base:           cfg.Base,
		newSession:     newSession,
		maxRetries:     maxRetries,
		backoff:        backoff,
		maxBackoff:     maxBackoff,
		metrics:        cfg.Metrics,
		conversationID: cfg.Base.ConversationID,
		done:           make(chan struct{}),
		disconnected:   make(chan struct{}, 1),
	}
}

// Connect establishes the initial session.
func (r *Runner) Connect(ctx context.Context) error {
	sess := r.buildSession()
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("runner initial connect: %w", err)
	}

	r.mu.Lock()
	r.sess = sess
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, 1)
	}
	return nil
}

// Monitor starts watching for disconnections in a background goroutine. When
// the active session reports a disconnect, the runner reconnects with
// exponential backoff.
func (r *Runner) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// Session returns the current session. May return a closed session during
// reconnection.
func (r *Runner) Session() *realtime.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// ConversationID returns the conversation handle carried across reconnects,
// or "" before the first persisted turn.
func (r *Runner) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversationID
}

// Stop halts monitoring and closes the current session. Safe to call
// multiple times.
func (r *Runner) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	sess := r.sess
	r.sess = nil
	r.mu.Unlock()

	if sess != nil {
		if r.metrics != nil {
			r.metrics.ActiveSessions.Add(context.Background(), -1)
		}
		return sess.Close()
	}
	return nil
}

// buildSession clones the base config with the current conversation handle
// and the runner's callback interceptors.
func (r *Runner) buildSession() *realtime.Session {
	cfg := r.base
	cfg.ConversationID = r.ConversationID()
	if cfg.Metrics == nil {
		cfg.Metrics = r.metrics
	}

	userDisconnect := r.base.Callbacks.OnDisconnect
	cfg.Callbacks.OnDisconnect = func() {
		if userDisconnect != nil {
			userDisconnect()
		}
		r.notifyDisconnect()
	}

	userCreated := r.base.Callbacks.OnConversationCreated
	cfg.Callbacks.OnConversationCreated = func(id string) {
		r.mu.Lock()
		r.conversationID = id
		r.mu.Unlock()
		if userCreated != nil {
			userCreated(id)
		}
	}

	return r.newSession(cfg)
}

// notifyDisconnect signals the monitor. A disconnect after Stop is the stop
// itself and is ignored.
func (r *Runner) notifyDisconnect() {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.disconnected <- struct{}{}:
	default:
		// Already signalled; avoid blocking.
	}
}

// monitorLoop waits for disconnect notifications and attempts reconnection.
func (r *Runner) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.attemptReconnect(ctx)
		}
	}
}

// attemptReconnect builds fresh sessions with exponential backoff until one
// connects or the retry budget is spent.
func (r *Runner) attemptReconnect(ctx context.Context) {
	currentBackoff := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		slog.Info("attempting reconnection",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
			"conversation", r.ConversationID(),
		)
		if r.metrics != nil {
			r.metrics.Reconnects.Add(ctx, 1)
		}

		sess := r.buildSession()
		err := sess.Connect(ctx)
		if err == nil {
			r.mu.Lock()
			old := r.sess
			r.sess = sess
			r.mu.Unlock()

			// Release whatever the dead session still holds.
			if old != nil {
				_ = old.Close()
			}

			slog.Info("reconnection successful", "attempt", attempt)
			return
		}

		slog.Warn("reconnection attempt failed",
			"attempt", attempt,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("reconnection abandoned", "max_retries", r.maxRetries)
}
