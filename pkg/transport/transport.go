// Package transport provides the media transport substrate for one realtime
// voice connection: the local session description exchange, the structured
// event side-channel, and the remote audio track lifecycle.
//
// The [Transport] interface decouples the session engine from the concrete
// media stack so the engine can be tested without network access. The default
// implementation ([Dialer]) carries the side-channel and audio over a
// WebSocket attached to the realtime endpoint; a full ICE-negotiated media
// path can be added later as another Transport implementation.
package transport

import (
	"context"

	"github.com/lumenwell/aria/pkg/audio"
)

// TrackEventKind classifies remote audio track lifecycle notifications.
type TrackEventKind int

const (
	// TrackStarted fires when the remote audio track becomes active —
	// the engine treats this as "assistant audio available".
	TrackStarted TrackEventKind = iota

	// TrackFrame delivers one decoded frame of remote audio.
	TrackFrame

	// TrackStopped fires when the remote track goes quiet or ends. It may
	// fire more than once per response and must never be treated as turn
	// completion.
	TrackStopped
)

// String returns the lowercase name of the kind.
func (k TrackEventKind) String() string {
	switch k {
	case TrackStarted:
		return "started"
	case TrackFrame:
		return "frame"
	case TrackStopped:
		return "stopped"
	}
	return "unknown"
}

// TrackEvent is a remote audio track notification. Frame is set only for
// [TrackFrame] events.
type TrackEvent struct {
	Kind  TrackEventKind
	Frame audio.Frame
}

// Transport is one live (or connecting) media transport. Implementations
// must make Close idempotent and safe to call concurrently with every other
// method, including mid-handshake.
type Transport interface {
	// CreateOffer builds the local session description for the signaling
	// exchange.
	CreateOffer(ctx context.Context) (string, error)

	// AcceptAnswer applies the remote session description received from the
	// signaling exchange.
	AcceptAnswer(ctx context.Context, answer string) error

	// SendAudio delivers one frame of captured audio to the remote endpoint.
	SendAudio(frame audio.Frame) error

	// Events returns the side-channel message stream. One element is one
	// record-delimited JSON message. The channel closes when the transport
	// closes or fails.
	Events() <-chan []byte

	// SendEvent writes one message on the side-channel.
	SendEvent(ctx context.Context, data []byte) error

	// RemoteAudio returns the remote track lifecycle stream. The channel
	// closes together with Events.
	RemoteAudio() <-chan TrackEvent

	// Err returns the first error that terminated the transport, if any.
	Err() error

	// Close tears down the transport and releases resources. Idempotent.
	Close() error
}

// Dialer creates transports. The session engine dials one transport per
// connection attempt.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}
