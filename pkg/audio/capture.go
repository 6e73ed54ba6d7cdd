package audio

import "context"

// ErrPermissionDenied is returned by a Device when the platform refuses
// microphone access. It is fatal for the connection attempt that requested
// the capture; the user has to grant access before a retry can succeed.
var ErrPermissionDenied = capturePermissionError{}

type capturePermissionError struct{}

func (capturePermissionError) Error() string { return "audio: capture permission denied" }

// CaptureOptions configures processing applied to the capture stream.
// The realtime pipeline requests all three processors: a raw microphone
// signal feeds the assistant its own voice back and breaks turn detection.
type CaptureOptions struct {
	// EchoCancellation removes playback bleed from the capture signal.
	EchoCancellation bool

	// NoiseSuppression attenuates stationary background noise.
	NoiseSuppression bool

	// AutoGainControl normalises the capture volume.
	AutoGainControl bool

	// SampleRate requests a capture rate in Hz. Zero means [SampleRate].
	SampleRate int
}

// DefaultCaptureOptions returns the options the engine uses for every
// connection attempt.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       SampleRate,
	}
}

// Device abstracts the platform microphone. One Device exists per process;
// the transport session manager owns it exclusively for the life of one
// connection and must Stop the stream before a new attempt reuses it.
type Device interface {
	// Open acquires the capture device and starts delivering frames.
	// Returns [ErrPermissionDenied] (possibly wrapped) when access is refused.
	Open(ctx context.Context, opts CaptureOptions) (Stream, error)
}

// Stream is a live capture stream.
type Stream interface {
	// Frames returns the channel delivering captured audio. The channel is
	// closed after Stop returns or when the device fails.
	Frames() <-chan Frame

	// Stop releases the device. Idempotent; safe to call concurrently with
	// a reader draining Frames.
	Stop() error
}
