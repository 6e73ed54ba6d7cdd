package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lumenwell/aria/pkg/audio"
)

const (
	eventChannelBuffer = 64
	trackChannelBuffer = 64

	// trackSilence is the gap after the last remote audio frame that marks
	// the track as stopped. Remote audio ending is advisory only; the engine
	// never treats it as turn completion.
	trackSilence = 500 * time.Millisecond
)

// Compile-time assertions.
var (
	_ Dialer    = (*WSDialer)(nil)
	_ Transport = (*wsTransport)(nil)
)

// WSDialer dials the default transport: a single WebSocket carrying the JSON
// side-channel as text frames and Opus-framed remote audio as binary frames.
// One dialer is built per connection attempt, carrying that attempt's
// credential.
type WSDialer struct {
	// URL is the realtime events endpoint (wss://...).
	URL string

	// Token is the session credential presented as bearer auth.
	Token string

	// Model is appended as a query parameter when non-empty.
	Model string
}

// Dial implements [Dialer].
func (d *WSDialer) Dial(ctx context.Context) (Transport, error) {
	wsURL := d.URL
	if d.Model != "" {
		wsURL = fmt.Sprintf("%s?model=%s", d.URL, d.Model)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + d.Token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial events channel: %w", err)
	}

	tctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		conn:   conn,
		events: make(chan []byte, eventChannelBuffer),
		tracks: make(chan TrackEvent, trackChannelBuffer),
		ctx:    tctx,
		cancel: cancel,
	}

	t.encoder, err = audio.NewOpusEncoder()
	if err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "codec init failed")
		return nil, err
	}
	t.decoder, err = audio.NewOpusDecoder()
	if err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "codec init failed")
		return nil, err
	}

	go t.receiveLoop()

	return t, nil
}

// wsTransport is the WebSocket-backed [Transport].
type wsTransport struct {
	conn    *websocket.Conn
	events  chan []byte
	tracks  chan TrackEvent
	encoder *audio.OpusEncoder
	decoder *audio.OpusDecoder

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	errVal      error
	closed      bool
	trackActive bool
	silenceTmr  *time.Timer

	closeOnce sync.Once
}

// CreateOffer implements [Transport]. The ws transport has no ICE exchange;
// its local description declares the audio format the signaling endpoint
// must accept.
func (t *wsTransport) CreateOffer(_ context.Context) (string, error) {
	offer := fmt.Sprintf(
		"v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\ns=aria\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\na=rtpmap:111 opus/%d/%d\r\n",
		audio.SampleRate, audio.Channels,
	)
	return offer, nil
}

// AcceptAnswer implements [Transport].
func (t *wsTransport) AcceptAnswer(_ context.Context, answer string) error {
	if answer == "" {
		return fmt.Errorf("%w: empty remote description", ErrHandshakeFailed)
	}
	return nil
}

// SendAudio implements [Transport]. The frame is Opus-encoded and written as
// one binary WebSocket message.
func (t *wsTransport) SendAudio(frame audio.Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport: closed")
	}
	t.mu.Unlock()

	packet, err := t.encoder.Encode(frame.Data)
	if err != nil {
		return err
	}
	return t.conn.Write(t.ctx, websocket.MessageBinary, packet)
}

// Events implements [Transport].
func (t *wsTransport) Events() <-chan []byte { return t.events }

// SendEvent implements [Transport].
func (t *wsTransport) SendEvent(ctx context.Context, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport: closed")
	}
	t.mu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// RemoteAudio implements [Transport].
func (t *wsTransport) RemoteAudio() <-chan TrackEvent { return t.tracks }

// Err implements [Transport].
func (t *wsTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errVal
}

// Close implements [Transport]. Idempotent.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.silenceTmr != nil {
		t.silenceTmr.Stop()
	}
	t.mu.Unlock()

	t.cancel()
	t.conn.Close(websocket.StatusNormalClosure, "transport closed")
	return nil
}

// receiveLoop reads WebSocket messages and routes them: text frames feed the
// side-channel, binary frames are decoded into remote track audio. It owns
// events and tracks: it closes both when it exits.
func (t *wsTransport) receiveLoop() {
	defer t.closeChannels()

	for {
		typ, data, err := t.conn.Read(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.setErr(err)
			return
		}

		switch typ {
		case websocket.MessageText:
			select {
			case t.events <- data:
			case <-t.ctx.Done():
				return
			}

		case websocket.MessageBinary:
			pcm, err := t.decoder.Decode(data)
			if err != nil || len(pcm) == 0 {
				continue
			}
			t.markTrackActive()
			frame := audio.Frame{
				Data:       pcm,
				SampleRate: audio.SampleRate,
				Channels:   audio.Channels,
			}
			select {
			case t.tracks <- TrackEvent{Kind: TrackFrame, Frame: frame}:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

// markTrackActive emits TrackStarted on the first frame of a burst and arms
// the silence timer that emits TrackStopped when the burst ends.
func (t *wsTransport) markTrackActive() {
	t.mu.Lock()
	started := !t.trackActive
	t.trackActive = true
	if t.silenceTmr == nil {
		t.silenceTmr = time.AfterFunc(trackSilence, t.onTrackSilence)
	} else {
		t.silenceTmr.Reset(trackSilence)
	}
	t.mu.Unlock()

	if started {
		select {
		case t.tracks <- TrackEvent{Kind: TrackStarted}:
		case <-t.ctx.Done():
		}
	}
}

// onTrackSilence fires when no remote audio arrived for trackSilence. The
// mutex spans the closed check and the send so a teardown closing the
// channel cannot slip between them; the send is non-blocking because the
// stop marker is advisory and must never wedge the timer goroutine.
func (t *wsTransport) onTrackSilence() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.trackActive || t.closed {
		return
	}
	t.trackActive = false
	select {
	case t.tracks <- TrackEvent{Kind: TrackStopped}:
	default:
	}
}

func (t *wsTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errVal == nil {
		t.errVal = err
	}
}

// closeChannels marks the transport terminal and closes both output
// channels. The mutex is held across the close so the silence timer (the
// only sender outside the receive goroutine) either sees closed and bails
// or finishes its send first.
func (t *wsTransport) closeChannels() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.trackActive = false
		if t.silenceTmr != nil {
			t.silenceTmr.Stop()
		}
		close(t.events)
		close(t.tracks)
		t.mu.Unlock()
	})
}
