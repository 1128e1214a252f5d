package audio

import (
	"math"
	"time"
)

// Buffer represents an immutable snapshot of mono PCM-16 audio.
// Pipeline stages never mutate a Buffer in place; each stage that changes
// audio produces a new Buffer.
type Buffer struct {
	samples    []int16
	sampleRate int
}

// NewBuffer creates a buffer from PCM-16 samples at the given sample rate.
// The sample slice is copied so the caller may reuse its backing array.
func NewBuffer(samples []int16, sampleRate int) *Buffer {
	owned := make([]int16, len(samples))
	copy(owned, samples)
	return &Buffer{
		samples:    owned,
		sampleRate: sampleRate,
	}
}

// NewSilentBuffer creates an empty buffer at the given sample rate.
// Used for zero-duration synthesis results.
func NewSilentBuffer(sampleRate int) *Buffer {
	return &Buffer{
		samples:    nil,
		sampleRate: sampleRate,
	}
}

// Samples returns a copy of the PCM samples.
func (b *Buffer) Samples() []int16 {
	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return out
}

// SampleRate returns the sample rate in Hz.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// SampleCount returns the number of PCM samples.
func (b *Buffer) SampleCount() int {
	return len(b.samples)
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.samples)) / float64(b.sampleRate) * float64(time.Second))
}

// Empty reports whether the buffer contains no samples.
func (b *Buffer) Empty() bool {
	return len(b.samples) == 0
}

// RMS computes the root mean square amplitude of the buffer, normalized to
// the [0, 1] range. Silence detection compares this against a threshold.
func (b *Buffer) RMS() float64 {
	if len(b.samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range b.samples {
		v := float64(s) / float64(math.MaxInt16)
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(b.samples)))
}
