package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func ramp(start, n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(start + i)
	}
	return PCM16ToBytes(samples)
}

func TestFrameBuffer_Defaults(t *testing.T) {
	b := NewFrameBuffer(0)
	if b.FrameSize() != DefaultFrameSize {
		t.Errorf("Expected frame size %d, got %d", DefaultFrameSize, b.FrameSize())
	}
	if b.SampleRate() != DefaultSampleRate {
		t.Errorf("Expected sample rate %d, got %d", DefaultSampleRate, b.SampleRate())
	}
}

func TestFrameBuffer_Configure(t *testing.T) {
	b := NewFrameBuffer(4)

	if err := b.Configure(16000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.SampleRate() != 16000 {
		t.Errorf("Expected 16000, got %d", b.SampleRate())
	}

	for _, rate := range []int{0, -1, 4000, 500000} {
		if err := b.Configure(rate); !errors.Is(err, ErrUnsupportedRate) {
			t.Errorf("rate %d: expected ErrUnsupportedRate, got %v", rate, err)
		}
	}

	b.OnFrame(func(Frame) {})
	if err := b.Configure(24000); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording while active, got %v", err)
	}
}

func TestFrameBuffer_FramesInOrder(t *testing.T) {
	b := NewFrameBuffer(4)

	var frames []Frame
	if err := b.OnFrame(func(f Frame) { frames = append(frames, f) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 + 6 samples: two full frames, one sample pending
	b.Write(ramp(0, 3))
	if len(frames) != 0 {
		t.Fatalf("Expected no frame before frame size is reached, got %d", len(frames))
	}
	b.Write(ramp(3, 6))

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	next := int16(0)
	for _, f := range frames {
		if f.SampleRate != DefaultSampleRate {
			t.Errorf("Expected rate %d, got %d", DefaultSampleRate, f.SampleRate)
		}
		if len(f.Mono) != 4 {
			t.Errorf("Expected 4 samples, got %d", len(f.Mono))
		}
		for _, s := range f.Mono {
			if s != next {
				t.Fatalf("Expected sample %d, got %d", next, s)
			}
			next++
		}
	}
}

func TestFrameBuffer_SingleConsumer(t *testing.T) {
	b := NewFrameBuffer(4)

	if err := b.OnFrame(nil); err == nil {
		t.Errorf("Expected error for nil callback")
	}
	if err := b.OnFrame(func(Frame) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.OnFrame(func(Frame) {}); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}
	if !b.Active() {
		t.Errorf("Expected buffer to be active")
	}

	b.Detach()
	if b.Active() {
		t.Errorf("Expected buffer to be inactive after Detach")
	}
	if err := b.OnFrame(func(Frame) {}); err != nil {
		t.Errorf("Expected re-registration after Detach to succeed, got %v", err)
	}
}

func TestFrameBuffer_DropsWhileDetached(t *testing.T) {
	b := NewFrameBuffer(4)
	b.Write(ramp(0, 8))

	count := 0
	b.OnFrame(func(Frame) { count++ })
	b.Write(ramp(0, 2))
	b.Detach()

	// partial frame from before Detach must not leak into the next recording
	b.OnFrame(func(Frame) { count++ })
	b.Write(ramp(0, 2))
	if count != 0 {
		t.Errorf("Expected no frames, got %d", count)
	}
	b.Write(ramp(0, 2))
	if count != 1 {
		t.Errorf("Expected 1 frame, got %d", count)
	}
}

func TestFrameBuffer_DetachWaitsForInFlightFrame(t *testing.T) {
	b := NewFrameBuffer(2)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	delivered := 0

	b.OnFrame(func(Frame) {
		mu.Lock()
		delivered++
		n := delivered
		mu.Unlock()
		if n == 1 {
			close(entered)
			<-release
		}
	})

	writeDone := make(chan struct{})
	go func() {
		// three frames in one write; detach lands during the first
		b.Write(ramp(0, 6))
		close(writeDone)
	}()

	<-entered
	detached := make(chan struct{})
	go func() {
		b.Detach()
		close(detached)
	}()

	select {
	case <-detached:
		t.Fatal("Detach returned while a frame was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-writeDone
	<-detached

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Errorf("Expected only the in-flight frame to be delivered, got %d", delivered)
	}
}
