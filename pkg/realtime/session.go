package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenwell/aria/internal/observe"
	"github.com/lumenwell/aria/pkg/audio"
	"github.com/lumenwell/aria/pkg/convo"
	"github.com/lumenwell/aria/pkg/transport"
)

// ConnectionState is the lifecycle state of one session attempt. Transitions
// are monotonic; a retry after an error is a fresh [Session.Connect] call.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

// String returns the lowercase name of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Callbacks is the caller-facing callback surface. Any field may be nil.
// Protocol-driven callbacks fire on the single serialized event-loop
// goroutine; OnDisconnect fires from whichever goroutine tears the session
// down (user Close or the loop reacting to a transport failure), exactly
// once either way.
type Callbacks struct {
	OnConnect             func()
	OnDisconnect          func()
	OnError               func(err error)
	OnUserTranscript      func(text string, final bool)
	OnAssistantTranscript func(text string, final bool)
	OnSpeakingStart       func()
	OnSpeakingEnd         func()
	OnTurnComplete        func()
	OnConversationCreated func(id string)
}

// Config configures a [Session].
type Config struct {
	// Broker mints the per-attempt session credential.
	Broker CredentialSource

	// SignalURL is the model signaling endpoint for the offer/answer
	// exchange.
	SignalURL string

	// EventsURL is the realtime events endpoint for the default transport.
	EventsURL string

	// Device is the local capture device.
	Device audio.Device

	// Capture overrides the capture processing options. Nil means
	// [audio.DefaultCaptureOptions].
	Capture *audio.CaptureOptions

	// Store is the external conversation store the persistence bridge
	// writes into.
	Store convo.Store

	// Titler optionally names the conversation created on the first turn.
	Titler Titler

	// ConversationID, when non-empty, is the existing conversation handle
	// to append into — set on reconnects within one voice session. Empty
	// means the handle is created lazily on the first turn.
	ConversationID string

	// Callbacks is the caller-facing callback surface.
	Callbacks Callbacks

	// Metrics receives turn outcomes, dropped events, and persistence
	// failures. Nil disables recording.
	Metrics *observe.Metrics

	// DialTransport overrides how the media transport is created for a
	// credential. Nil means a [transport.WSDialer] against EventsURL.
	DialTransport func(ctx context.Context, cred Credential) (transport.Transport, error)

	// Exchange overrides the signaling exchange. Nil means a
	// [transport.Signaler] against SignalURL.
	Exchange func(ctx context.Context, cred Credential, offer string) (string, error)
}

// loopMsg is one entry on the session's ordered event queue. Exactly one
// field is set.
type loopMsg struct {
	ev        Event
	track     *transport.TrackEvent
	transport error  // transport failure
	convID    string // conversation created by the bridge
	connected bool   // handshake completed
}

// Session is one realtime voice session attempt. All turn and connection
// state is owned by a single event-loop goroutine fed by one ordered queue;
// network callbacks and the capture path only enqueue.
//
// A Session connects at most once. Reconnecting means a new Session, carrying
// the previous ConversationID forward.
type Session struct {
	cfg    Config
	cb     Callbacks
	meter  *audio.Meter
	bridge *bridge

	ctx    context.Context
	cancel context.CancelFunc

	queue    chan loopMsg
	loopDone chan struct{}

	mu         sync.Mutex
	state      ConnectionState
	turn       TurnState
	turnStart  time.Time // when the current turn entered Thinking
	buffer     transcriptBuffer
	audible    bool // OnSpeakingStart fired without a matching OnSpeakingEnd
	errorFired bool

	transport transport.Transport
	stream    audio.Stream

	disconnectOnce sync.Once
}

const queueDepth = 256

// NewSession creates a session in [StateIdle]. Connect starts it.
func NewSession(cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		cb:       cfg.Callbacks,
		meter:    audio.NewMeter(),
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan loopMsg, queueDepth),
		loopDone: make(chan struct{}),
	}
	s.bridge = newBridge(cfg.Store, cfg.Titler, cfg.ConversationID, cfg.Metrics, func(id string) {
		s.enqueue(loopMsg{convID: id})
	})
	return s
}

// State returns a snapshot of the connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turn returns a snapshot of the turn state.
func (s *Session) Turn() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Amplitude returns the current assistant output level in [0, 1]. It reads
// zero outside the Speaking state, so a visualizer driven by it goes quiet
// the moment the turn ends.
func (s *Session) Amplitude() float64 {
	s.mu.Lock()
	speaking := s.turn == TurnSpeaking
	s.mu.Unlock()
	if !speaking {
		return 0
	}
	return s.meter.Level()
}

// ConversationID returns the conversation handle, or "" before the first
// persisted turn creates it.
func (s *Session) ConversationID() string {
	return s.bridge.conversation()
}

// Connect acquires a fresh credential, the capture device, and the media
// transport, performs the signaling handshake, and starts the event loop.
// On failure the attempt's resources are released, OnError fires once, and
// the caller must retry with a new Connect (a fresh credential is acquired
// automatically).
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		// first attempt
	case StateError:
		// explicit retry after a failed attempt
		s.errorFired = false
	case StateConnecting, StateConnected:
		s.mu.Unlock()
		return ErrSessionActive
	default:
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.mu.Lock()
		userClosed := s.state == StateClosing || s.state == StateClosed
		if s.state == StateConnecting {
			s.state = StateError
		}
		s.mu.Unlock()

		s.releaseResources()

		if userClosed {
			return fmt.Errorf("realtime: connect aborted: %w", ErrSessionClosed)
		}
		s.fireFatalError(err)
		return err
	}
	return nil
}

// connect performs the handshake sequence. State is Connecting on entry.
func (s *Session) connect(ctx context.Context) error {
	cred, err := s.cfg.Broker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire credential: %w", err)
	}
	if cred.Expired(time.Now()) {
		return fmt.Errorf("%w: expired before handshake", ErrCredentialExpired)
	}

	opts := audio.DefaultCaptureOptions()
	if s.cfg.Capture != nil {
		opts = *s.cfg.Capture
	}
	stream, err := s.cfg.Device.Open(ctx, opts)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return fmt.Errorf("open capture: %w", err)
		}
		return fmt.Errorf("%w: open capture: %v", ErrTransport, err)
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	t, err := s.dialTransport(ctx, cred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	offer, err := t.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrTransport, err)
	}

	answer, err := s.exchange(ctx, cred, offer)
	if err != nil {
		return fmt.Errorf("signaling exchange: %w", err)
	}

	// Credential expiry is a soft handshake timeout: a stale credential
	// must never carry a live session.
	if cred.Expired(time.Now()) {
		return fmt.Errorf("%w: expired during handshake", ErrCredentialExpired)
	}

	if err := t.AcceptAnswer(ctx, answer); err != nil {
		return fmt.Errorf("apply remote description: %w", err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Close won the race mid-handshake.
		s.mu.Unlock()
		return fmt.Errorf("session closed during handshake")
	}
	s.state = StateConnected
	s.mu.Unlock()

	go s.run()
	go s.pumpEvents(t)
	go s.pumpTracks(t)
	go s.pumpCapture(t, stream)

	s.enqueue(loopMsg{connected: true})
	return nil
}

func (s *Session) dialTransport(ctx context.Context, cred Credential) (transport.Transport, error) {
	if s.cfg.DialTransport != nil {
		return s.cfg.DialTransport(ctx, cred)
	}
	d := &transport.WSDialer{URL: s.cfg.EventsURL, Token: cred.Token, Model: cred.Model}
	return d.Dial(ctx)
}

func (s *Session) exchange(ctx context.Context, cred Credential, offer string) (string, error) {
	if s.cfg.Exchange != nil {
		return s.cfg.Exchange(ctx, cred, offer)
	}
	sig := &transport.Signaler{Endpoint: s.cfg.SignalURL}
	return sig.Exchange(ctx, cred.Token, cred.Model, offer)
}

// Close tears the session down: event side-channel and transport closed,
// capture released, pending persistence left to drain. Idempotent and safe
// from any state, including mid-handshake. OnDisconnect fires exactly once
// across all Close calls and failure paths.
func (s *Session) Close() error {
	s.shutdown()
	return nil
}

// shutdown is the single teardown path, shared by Close and the loop's
// transport-failure handling.
func (s *Session) shutdown() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	// Any attempt that has begun owes the caller a disconnect, including a
	// Close that interrupts the handshake mid-flight.
	began := s.state == StateConnected || s.state == StateConnecting
	s.state = StateClosing
	s.turn = TurnIdle
	s.mu.Unlock()

	// Cancelling the context stops the event loop, the pumps, and any
	// in-flight handshake I/O.
	s.cancel()
	s.releaseResources()
	s.bridge.close()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if began {
		s.disconnectOnce.Do(func() {
			if s.cb.OnDisconnect != nil {
				s.cb.OnDisconnect()
			}
		})
	}
}

// releaseResources closes the transport (side-channel first, by transport
// contract) and stops local capture. Every step is independently guarded so
// one failure cannot block the rest.
func (s *Session) releaseResources() {
	s.mu.Lock()
	t := s.transport
	stream := s.stream
	s.transport = nil
	s.stream = nil
	s.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			slog.Warn("transport close failed", "err", err)
		}
	}
	if stream != nil {
		if err := stream.Stop(); err != nil {
			slog.Warn("capture stop failed", "err", err)
		}
	}
}

// fireFatalError surfaces a connection-fatal error via OnError, at most once
// per attempt.
func (s *Session) fireFatalError(err error) {
	s.mu.Lock()
	if s.errorFired {
		s.mu.Unlock()
		return
	}
	s.errorFired = true
	s.mu.Unlock()

	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

// enqueue places one message on the ordered queue. Never blocks: after
// shutdown the queue stops draining and messages are dropped.
func (s *Session) enqueue(m loopMsg) {
	select {
	case s.queue <- m:
	case <-s.ctx.Done():
	}
}

// ── producers ─────────────────────────────────────────────────────────────────

// pumpEvents decodes side-channel messages and enqueues them in arrival
// order. Malformed messages are dropped per-message; they never desynchronize
// the machine.
func (s *Session) pumpEvents(t transport.Transport) {
	for data := range t.Events() {
		ev, err := ParseEvent(data)
		if err != nil {
			slog.Debug("dropping malformed event", "err", err)
			s.recordDrop("malformed")
			continue
		}
		s.enqueue(loopMsg{ev: ev})
	}
	if err := t.Err(); err != nil {
		s.enqueue(loopMsg{transport: err})
	}
}

// pumpTracks forwards remote track lifecycle events to the queue. Audio
// frames feed the amplitude meter directly — they carry no state and would
// flood the queue.
func (s *Session) pumpTracks(t transport.Transport) {
	for te := range t.RemoteAudio() {
		if te.Kind == transport.TrackFrame {
			s.meter.Observe(te.Frame)
			continue
		}
		te := te
		s.enqueue(loopMsg{track: &te})
	}
}

// pumpCapture forwards captured frames to the transport until the stream or
// the transport ends.
func (s *Session) pumpCapture(t transport.Transport, stream audio.Stream) {
	for f := range stream.Frames() {
		if err := t.SendAudio(f); err != nil {
			slog.Debug("send audio failed, stopping capture forwarding", "err", err)
			return
		}
	}
}

// ── the serialized event loop ─────────────────────────────────────────────────

// run consumes the ordered queue. It is the only goroutine that mutates turn
// state and the transcript buffer, and the only place protocol callbacks
// fire.
func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.queue:
			s.handle(m)
		}
	}
}

func (s *Session) handle(m loopMsg) {
	switch {
	case m.connected:
		s.applyTurn(sigConnected)
		if s.cb.OnConnect != nil {
			s.cb.OnConnect()
		}

	case m.transport != nil:
		s.fireFatalError(fmt.Errorf("%w: %v", ErrTransport, m.transport))
		s.shutdown()

	case m.convID != "":
		if s.cb.OnConversationCreated != nil {
			s.cb.OnConversationCreated(m.convID)
		}

	case m.track != nil:
		s.handleTrack(*m.track)

	case m.ev != nil:
		s.handleEvent(m.ev)
	}
}

func (s *Session) handleTrack(te transport.TrackEvent) {
	switch te.Kind {
	case transport.TrackStarted:
		// Assistant audio available. First of track-start / first
		// transcript delta wins the Thinking→Speaking transition; the
		// loser is a no-op.
		if s.applyTurn(sigAssistantActive) {
			s.fireSpeakingStart()
		}

	case transport.TrackStopped:
		// Advisory only: the assistant may pause and resume within one
		// response. Never a turn completion.
		s.fireSpeakingEnd()
	}
}

func (s *Session) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case EventSpeechStarted:
		if s.Turn() == TurnSpeaking {
			s.cancelResponse()
		}

	case EventSpeechStopped:
		// Not authoritative for anything; buffer-committed ends the user
		// turn.

	case EventBufferCommitted:
		if s.applyTurn(sigCommitted) {
			s.mu.Lock()
			s.turnStart = time.Now()
			s.mu.Unlock()
		}

	case EventUserTranscript:
		s.handleUserTranscript(ev.Text)

	case EventAssistantDelta:
		s.handleAssistantDelta(ev.Text)

	case EventAssistantDone:
		s.handleAssistantDone(ev.Text)

	case EventResponseCreated:
		// Generation started; the turn advances on committed/active
		// signals, not on this.

	case EventResponseDone:
		s.completeTurn()

	case EventResponseFailed:
		slog.Warn("response failed", "reason", ev.Reason)
		s.abortTurn("failed")

	case EventResponseCancelled:
		s.abortTurn("cancelled")

	case EventAudioDone:
		s.fireSpeakingEnd()

	case EventServerError:
		// Server errors surface but do not terminate the session.
		if s.cb.OnError != nil {
			s.cb.OnError(fmt.Errorf("realtime: server error: %s", ev.Message))
		}

	case EventUnknown:
		// Guaranteed no-op: unknown types preserve forward compatibility.
		slog.Debug("ignoring unknown event type", "type", ev.Type)
		s.recordDrop("unknown")
	}
}

func (s *Session) handleUserTranscript(text string) {
	s.mu.Lock()
	accept := s.turn == TurnThinking || s.turn == TurnSpeaking
	if accept {
		s.buffer.setUserFinal(text)
	}
	s.mu.Unlock()

	if !accept {
		slog.Debug("dropping user transcript outside active turn")
		s.recordDrop("outside_turn")
		return
	}
	if s.cb.OnUserTranscript != nil {
		s.cb.OnUserTranscript(text, true)
	}
}

func (s *Session) handleAssistantDelta(text string) {
	s.mu.Lock()
	accept := s.turn == TurnThinking || s.turn == TurnSpeaking
	if accept {
		s.buffer.addAssistantDelta(text)
	}
	s.mu.Unlock()

	if !accept {
		s.recordDrop("outside_turn")
		return
	}
	if s.applyTurn(sigAssistantActive) {
		s.fireSpeakingStart()
	}
	if s.cb.OnAssistantTranscript != nil {
		s.cb.OnAssistantTranscript(text, false)
	}
}

func (s *Session) handleAssistantDone(text string) {
	s.mu.Lock()
	accept := s.turn == TurnThinking || s.turn == TurnSpeaking
	if accept {
		s.buffer.setAssistantFinal(text)
	}
	s.mu.Unlock()

	if !accept {
		slog.Debug("dropping assistant transcript outside active turn")
		s.recordDrop("outside_turn")
		return
	}
	if s.cb.OnAssistantTranscript != nil {
		s.cb.OnAssistantTranscript(text, true)
	}
}

// completeTurn handles the authoritative response-done: dispatch persistence,
// then return to Listening. The transcript buffer is empty again before the
// next Listening→Thinking transition can begin.
func (s *Session) completeTurn() {
	s.mu.Lock()
	active := s.turn == TurnSpeaking || s.turn == TurnThinking
	started := s.turnStart
	var userText, assistantText string
	if active {
		userText, assistantText = s.buffer.finalize()
	}
	s.mu.Unlock()

	if !active {
		slog.Debug("dropping response-done outside active turn")
		return
	}

	s.bridge.enqueue(userText, assistantText)
	s.fireSpeakingEnd()
	s.applyTurn(sigResponseDone)
	s.meter.Reset()
	s.recordTurn("completed", started)

	if s.cb.OnTurnComplete != nil {
		s.cb.OnTurnComplete()
	}
}

// abortTurn handles response-failed/cancelled: the partial assistant
// transcript is discarded, nothing is persisted, and the machine returns to
// Listening.
func (s *Session) abortTurn(outcome string) {
	s.mu.Lock()
	active := s.turn == TurnThinking || s.turn == TurnSpeaking
	started := s.turnStart
	if active {
		s.buffer.reset()
	}
	s.mu.Unlock()

	if !active {
		return
	}
	s.fireSpeakingEnd()
	s.applyTurn(sigResponseAborted)
	s.meter.Reset()
	s.recordTurn(outcome, started)
}

func (s *Session) recordDrop(reason string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordDroppedEvent(s.ctx, reason)
	}
}

func (s *Session) recordTurn(outcome string, started time.Time) {
	if s.cfg.Metrics == nil {
		return
	}
	var seconds float64
	if !started.IsZero() {
		seconds = time.Since(started).Seconds()
	}
	s.cfg.Metrics.RecordTurn(s.ctx, outcome, seconds)
}

// cancelResponse sends a response.cancel on the side-channel after a
// barge-in. The turn machine moves only when the server confirms with a
// cancelled status.
func (s *Session) cancelResponse() {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.SendEvent(s.ctx, []byte(`{"type":"response.cancel"}`)); err != nil {
		slog.Warn("response cancel failed", "err", err)
	}
}

// applyTurn runs one signal through the transition table and reports whether
// the state changed.
func (s *Session) applyTurn(sig turnSignal) bool {
	s.mu.Lock()
	next, ok := nextTurn(s.turn, sig)
	if ok {
		s.turn = next
	}
	s.mu.Unlock()
	return ok
}

func (s *Session) fireSpeakingStart() {
	s.mu.Lock()
	fire := !s.audible
	s.audible = true
	s.mu.Unlock()

	if fire && s.cb.OnSpeakingStart != nil {
		s.cb.OnSpeakingStart()
	}
}

// fireSpeakingEnd fires OnSpeakingEnd if a matching OnSpeakingStart is
// outstanding. Audio-done signals can repeat within one turn; the pairing
// here keeps the callback balanced.
func (s *Session) fireSpeakingEnd() {
	s.mu.Lock()
	fire := s.audible
	s.audible = false
	s.mu.Unlock()

	if fire && s.cb.OnSpeakingEnd != nil {
		s.cb.OnSpeakingEnd()
	}
}
