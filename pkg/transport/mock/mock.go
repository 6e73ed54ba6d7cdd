// Package mock provides a scriptable [transport.Transport] and
// [transport.Dialer] for engine tests. Tests push side-channel messages and
// track events into the transport and assert on what the engine sent.
package mock

import (
	"context"
	"sync"

	"github.com/lumenwell/aria/pkg/audio"
	"github.com/lumenwell/aria/pkg/transport"
)

// Compile-time assertions.
var (
	_ transport.Dialer    = (*Dialer)(nil)
	_ transport.Transport = (*Transport)(nil)
)

// Dialer hands out mock transports. When DialErr is set, Dial fails with it.
type Dialer struct {
	// DialErr, when non-nil, fails every Dial call.
	DialErr error

	mu         sync.Mutex
	transports []*Transport
}

// NewDialer creates a mock Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements [transport.Dialer].
func (d *Dialer) Dial(_ context.Context) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.DialErr != nil {
		return nil, d.DialErr
	}
	t := NewTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

// Last returns the most recently dialed transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// Dials returns how many transports were dialed.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

// Transport is a scriptable in-memory transport.
type Transport struct {
	// OfferErr, AnswerErr fail the corresponding handshake step.
	OfferErr  error
	AnswerErr error

	events chan []byte
	tracks chan transport.TrackEvent

	mu         sync.Mutex
	closed     bool
	errVal     error
	answer     string
	sentAudio  []audio.Frame
	sentEvents [][]byte
}

// NewTransport creates a mock transport with buffered channels.
func NewTransport() *Transport {
	return &Transport{
		events: make(chan []byte, 64),
		tracks: make(chan transport.TrackEvent, 64),
	}
}

// PushEvent delivers one side-channel message to the engine. It is a no-op
// after Close.
func (t *Transport) PushEvent(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.events <- data
}

// PushTrack delivers one remote track event to the engine.
func (t *Transport) PushTrack(ev transport.TrackEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.tracks <- ev
}

// Fail records err and closes the channels, simulating a dead transport.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.errVal = err
	close(t.events)
	close(t.tracks)
}

// CreateOffer implements [transport.Transport].
func (t *Transport) CreateOffer(_ context.Context) (string, error) {
	if t.OfferErr != nil {
		return "", t.OfferErr
	}
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=mock\r\n", nil
}

// AcceptAnswer implements [transport.Transport].
func (t *Transport) AcceptAnswer(_ context.Context, answer string) error {
	if t.AnswerErr != nil {
		return t.AnswerErr
	}
	t.mu.Lock()
	t.answer = answer
	t.mu.Unlock()
	return nil
}

// Answer returns the remote description the engine applied.
func (t *Transport) Answer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.answer
}

// SendAudio implements [transport.Transport].
func (t *Transport) SendAudio(frame audio.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentAudio = append(t.sentAudio, frame)
	return nil
}

// SentAudio returns the frames the engine sent.
func (t *Transport) SentAudio() []audio.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]audio.Frame, len(t.sentAudio))
	copy(out, t.sentAudio)
	return out
}

// Events implements [transport.Transport].
func (t *Transport) Events() <-chan []byte { return t.events }

// SendEvent implements [transport.Transport].
func (t *Transport) SendEvent(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	t.sentEvents = append(t.sentEvents, cp)
	return nil
}

// SentEvents returns the side-channel messages the engine sent.
func (t *Transport) SentEvents() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sentEvents))
	copy(out, t.sentEvents)
	return out
}

// RemoteAudio implements [transport.Transport].
func (t *Transport) RemoteAudio() <-chan transport.TrackEvent { return t.tracks }

// Err implements [transport.Transport].
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errVal
}

// Close implements [transport.Transport]. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.events)
	close(t.tracks)
	return nil
}

// Closed reports whether Close or Fail has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
