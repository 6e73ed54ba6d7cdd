package audio

import (
	"context"
	"sync"
	"time"
)

// Compile-time assertions.
var (
	_ Device = (*NullDevice)(nil)
	_ Stream = (*nullStream)(nil)
)

// NullDevice is a [Device] that produces timed frames of silence. It backs
// headless deployments where no platform capture is wired in, keeping the
// uplink cadence alive so the remote side treats the session as an open
// microphone with a quiet room.
type NullDevice struct{}

// Open implements [Device].
func (NullDevice) Open(_ context.Context, opts CaptureOptions) (Stream, error) {
	rate := opts.SampleRate
	if rate == 0 {
		rate = SampleRate
	}
	samples := rate * int(FrameDuration/time.Millisecond) / 1000

	s := &nullStream{
		frames: make(chan Frame),
		done:   make(chan struct{}),
		rate:   rate,
		data:   make([]byte, samples*2*Channels),
	}
	go s.run()
	return s, nil
}

type nullStream struct {
	frames chan Frame
	done   chan struct{}
	rate   int
	data   []byte

	stopOnce sync.Once
}

func (s *nullStream) run() {
	defer close(s.frames)
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			f := Frame{
				Data:       s.data,
				SampleRate: s.rate,
				Channels:   Channels,
				Timestamp:  now.Sub(start),
			}
			select {
			case s.frames <- f:
			case <-s.done:
				return
			}
		}
	}
}

// Frames implements [Stream].
func (s *nullStream) Frames() <-chan Frame { return s.frames }

// Stop implements [Stream].
func (s *nullStream) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}
