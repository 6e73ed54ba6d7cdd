// Package mock provides in-memory fakes for the audio capture abstraction,
// used by engine and transport tests.
package mock

import (
	"context"
	"sync"

	"github.com/lumenwell/aria/pkg/audio"
)

// Device is a fake [audio.Device]. Tests can push frames into the stream it
// hands out and assert on the options the engine opened it with.
type Device struct {
	// OpenErr, when non-nil, is returned by Open (e.g. audio.ErrPermissionDenied).
	OpenErr error

	mu       sync.Mutex
	lastOpts audio.CaptureOptions
	opens    int
	stream   *Stream
}

// NewDevice creates a mock Device.
func NewDevice() *Device {
	return &Device{}
}

// Open implements [audio.Device].
func (d *Device) Open(_ context.Context, opts audio.CaptureOptions) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.lastOpts = opts
	d.opens++
	d.stream = &Stream{frames: make(chan audio.Frame, 64)}
	return d.stream, nil
}

// LastOptions returns the options passed to the most recent Open call.
func (d *Device) LastOptions() audio.CaptureOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastOpts
}

// Opens returns how many times Open succeeded.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Stream returns the most recently opened stream, or nil.
func (d *Device) Stream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

// Stream is a fake [audio.Stream].
type Stream struct {
	frames chan audio.Frame

	mu      sync.Mutex
	stopped bool
}

// Push delivers a frame to the stream's consumer. Frames pushed after Stop
// are dropped.
func (s *Stream) Push(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.frames <- f:
	default:
	}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Stop implements [audio.Stream]. Idempotent.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.frames)
	return nil
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
