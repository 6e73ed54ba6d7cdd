// Package audio provides the audio primitives shared by the Aria voice
// engine: PCM frames, sample conversion helpers, an amplitude meter, an Opus
// codec wrapper, and the capture-device abstraction.
package audio

import "time"

// Engine-wide audio format: the realtime endpoint speaks 24 kHz mono PCM16
// in 20 ms frames, Opus-framed on the wire.
const (
	// SampleRate is the engine sample rate in Hz.
	SampleRate = 24000

	// Channels is the channel count; the engine is mono end to end.
	Channels = 1

	// FrameDuration is the length of one audio frame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples per channel in one frame.
	FrameSamples = SampleRate / 1000 * 20 // 480
)

// Frame represents a single frame of audio flowing through the engine —
// captured from the microphone, sent to the transport, or received from the
// remote speaker track.
type Frame struct {
	// PCM audio data as little-endian int16 samples.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono capture, 2 if a source delivers stereo.
	Channels int

	// Timestamp marks when this frame was captured or received, relative to
	// stream start.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel contained in the frame.
func (f Frame) Samples() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Data) / 2 / f.Channels
}
