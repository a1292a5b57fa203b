// Package framebuf accumulates captured samples into fixed-size analysis windows.
package framebuf

import "fmt"

// Buffer is a rolling sample buffer that emits windows of Size samples every Hop samples.
// It is not safe for concurrent use; the capture callback owns it.
type Buffer struct {
	size   int
	hop    int
	ring   []float64 // len == size, holds the most recent samples
	filled int       // valid samples in ring
	window []float64 // reused for every emitted window
}

// New creates a buffer for windows of size samples advancing by hop samples.
// A hop of 0 selects non-overlapping windows.
func New(size, hop int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if hop == 0 {
		hop = size
	}
	if hop < 0 || hop > size {
		return nil, fmt.Errorf("hop must be in (0, %d], got %d", size, hop)
	}
	return &Buffer{
		size:   size,
		hop:    hop,
		ring:   make([]float64, size),
		window: make([]float64, size),
	}, nil
}

// Size returns the window length.
func (b *Buffer) Size() int { return b.size }

// Hop returns the number of samples between consecutive windows.
func (b *Buffer) Hop() int { return b.hop }

// Len returns the number of buffered samples not yet emitted as the head of a window.
func (b *Buffer) Len() int { return b.filled }

// Reset discards buffered samples.
func (b *Buffer) Reset() { b.filled = 0 }

// Push appends samples and calls emit for each completed window. The window slice
// is reused and must not be retained after emit returns.
func (b *Buffer) Push(samples []float32, emit func(window []float64)) {
	for len(samples) > 0 {
		n := b.size - b.filled
		if n > len(samples) {
			n = len(samples)
		}
		dst := b.ring[b.filled : b.filled+n]
		for i, s := range samples[:n] {
			dst[i] = float64(s)
		}
		b.filled += n
		samples = samples[n:]

		if b.filled < b.size {
			return
		}
		copy(b.window, b.ring)
		emit(b.window)

		// Keep the overlap at the head of the ring.
		keep := b.size - b.hop
		copy(b.ring, b.ring[b.hop:])
		b.filled = keep
	}
}
