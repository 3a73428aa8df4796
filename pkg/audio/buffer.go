package audio

import (
	"fmt"
	"sync"
)

const (
	// DefaultSampleRate is the rate the realtime session expects for pcm16 input.
	DefaultSampleRate = 24000

	// DefaultFrameSize is the number of samples per delivered frame (8192 bytes of PCM16).
	DefaultFrameSize = 4096

	// MinSampleRate and MaxSampleRate bound the rates a capture backend can resample to.
	MinSampleRate = 8000
	MaxSampleRate = 384000
)

// FrameBuffer cuts a continuous PCM16 byte stream into fixed-size frames and
// hands each completed frame to a single consumer.
//
// Delivery is synchronous: Write does not return until every frame it
// completed has been passed to the consumer, so frames arrive in capture
// order and never concurrently. The consumer must not call Detach itself.
type FrameBuffer struct {
	mu         sync.Mutex
	sampleRate int
	frameSize  int
	pending    []int16
	consumer   func(Frame)

	// held for the duration of a Write, including consumer calls
	deliverMu sync.Mutex
}

// NewFrameBuffer creates a buffer producing frames of frameSize samples at
// DefaultSampleRate. A non-positive frameSize selects DefaultFrameSize.
func NewFrameBuffer(frameSize int) *FrameBuffer {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &FrameBuffer{
		sampleRate: DefaultSampleRate,
		frameSize:  frameSize,
		pending:    make([]int16, 0, frameSize),
	}
}

// Configure sets the sample rate stamped on produced frames.
func (b *FrameBuffer) Configure(sampleRate int) error {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return fmt.Errorf("%w: %d Hz (must be %d-%d)", ErrUnsupportedRate, sampleRate, MinSampleRate, MaxSampleRate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumer != nil {
		return fmt.Errorf("%w: cannot change sample rate while recording", ErrAlreadyRecording)
	}
	b.sampleRate = sampleRate
	b.pending = b.pending[:0]
	return nil
}

// SampleRate returns the configured sample rate.
func (b *FrameBuffer) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleRate
}

// FrameSize returns the number of samples per frame.
func (b *FrameBuffer) FrameSize() int {
	return b.frameSize
}

// OnFrame registers the frame consumer. Only one consumer may be active.
func (b *FrameBuffer) OnFrame(callback func(Frame)) error {
	if callback == nil {
		return fmt.Errorf("audio: nil frame callback")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumer != nil {
		return ErrAlreadyRecording
	}
	b.consumer = callback
	return nil
}

// Detach removes the consumer. A frame being delivered when Detach is called
// still reaches the consumer; Detach returns once that delivery is complete.
// Any partially filled frame is discarded.
func (b *FrameBuffer) Detach() {
	b.mu.Lock()
	b.consumer = nil
	b.pending = b.pending[:0]
	b.mu.Unlock()

	// wait out an in-flight Write
	b.deliverMu.Lock()
	b.deliverMu.Unlock()
}

// Active reports whether a consumer is registered.
func (b *FrameBuffer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumer != nil
}

// Write ingests little-endian PCM16 bytes from the capture device. Samples
// written while no consumer is registered are dropped.
func (b *FrameBuffer) Write(pcm []byte) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.consumer == nil {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, PCM16FromBytes(pcm)...)
	var frames []Frame
	for len(b.pending) >= b.frameSize {
		mono := make([]int16, b.frameSize)
		copy(mono, b.pending[:b.frameSize])
		frames = append(frames, Frame{Mono: mono, SampleRate: b.sampleRate})
		b.pending = append(b.pending[:0], b.pending[b.frameSize:]...)
	}
	b.mu.Unlock()

	for _, f := range frames {
		b.mu.Lock()
		consumer := b.consumer
		b.mu.Unlock()
		if consumer == nil {
			return
		}
		consumer(f)
	}
}
