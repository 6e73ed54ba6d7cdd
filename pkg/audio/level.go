package audio

import (
	"math"
	"sync/atomic"
)

// Meter tracks the short-term amplitude of an audio stream. It is the source
// of the numeric level signal the engine exposes to its caller (a visualizer
// consumes it; rendering is not this package's concern).
//
// Observe is called from the audio path; Level may be read concurrently from
// any goroutine. The value decays towards zero when no frames arrive, so a
// stalled stream reads as silence rather than freezing at the last level.
type Meter struct {
	// level holds the current amplitude in [0, 1] as a float64 bit pattern.
	level atomic.Uint64

	// DecayFactor scales the previous level into the new one, smoothing
	// frame-to-frame jitter. Zero means no smoothing.
	DecayFactor float64
}

// NewMeter returns a Meter with a mild default smoothing factor.
func NewMeter() *Meter {
	return &Meter{DecayFactor: 0.6}
}

// Observe folds one frame into the meter. Empty frames decay the level.
func (m *Meter) Observe(f Frame) {
	rms := RMS(f.Data)
	prev := m.Level()
	next := prev*m.DecayFactor + rms*(1-m.DecayFactor)
	m.level.Store(math.Float64bits(next))
}

// Level returns the current amplitude in [0, 1].
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Reset forces the level back to zero, used when the speaker goes quiet.
func (m *Meter) Reset() {
	m.level.Store(0)
}

// RMS computes the root-mean-square amplitude of little-endian PCM16 data,
// normalised to [0, 1].
func RMS(pcm []byte) float64 {
	samples := BytesToInt16s(pcm)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / math.MaxInt16
}
