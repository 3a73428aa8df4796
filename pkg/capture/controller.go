// Package capture owns the microphone lifecycle. Controller is a three-state
// machine (ended, paused, recording) that opens a Device, feeds its output
// into an audio.FrameBuffer and decides when frames reach the caller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
)

// Controller tracks capture status and wires device output to a frame callback.
type Controller struct {
	// serialises state transitions; never held by readers
	opMu sync.Mutex

	mu     sync.RWMutex
	status Status

	device Device
	buffer *audio.FrameBuffer
}

// NewController creates a controller in the ended state. A nil buffer selects
// a FrameBuffer with default frame size and sample rate.
func NewController(device Device, buffer *audio.FrameBuffer) *Controller {
	if buffer == nil {
		buffer = audio.NewFrameBuffer(0)
	}
	return &Controller{
		status: StatusEnded,
		device: device,
		buffer: buffer,
	}
}

// Status returns the current capture status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SampleRate returns the rate frames are captured at.
func (c *Controller) SampleRate() int {
	return c.buffer.SampleRate()
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Controller) expect(op string, want Status) error {
	if got := c.Status(); got != want {
		return fmt.Errorf("%w: %s requires %s, status is %s", ErrInvalidState, op, want, got)
	}
	return nil
}

// Begin acquires the input device and moves ended -> paused. Device output is
// discarded until Record is called.
func (c *Controller) Begin(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("begin", StatusEnded); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.device == nil {
		return fmt.Errorf("%w: no capture device configured", ErrDeviceUnavailable)
	}

	want := c.buffer.SampleRate()
	got, err := c.device.Open(want, c.buffer.Write)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if got != want {
		_ = c.device.Close()
		return fmt.Errorf("%w: device runs at %d Hz, want %d Hz", ErrUnsupportedRate, got, want)
	}
	if err := c.device.Start(); err != nil {
		_ = c.device.Close()
		return fmt.Errorf("%w: start: %v", ErrDeviceUnavailable, err)
	}

	c.setStatus(StatusPaused)
	return nil
}

// Record moves paused -> recording and delivers every subsequent frame to onFrame.
func (c *Controller) Record(onFrame func(audio.Frame)) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("record", StatusPaused); err != nil {
		return err
	}
	if err := c.buffer.OnFrame(onFrame); err != nil {
		return err
	}
	c.setStatus(StatusRecording)
	return nil
}

// Pause moves recording -> paused. A frame being delivered when Pause is
// called completes first; no frame is delivered after Pause returns.
func (c *Controller) Pause() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("pause", StatusRecording); err != nil {
		return err
	}
	c.buffer.Detach()
	c.setStatus(StatusPaused)
	return nil
}

// End releases the device from any state. Ending an ended controller is a no-op.
// The controller is ended on return even when releasing the device fails.
func (c *Controller) End() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Status() == StatusEnded {
		return nil
	}

	c.buffer.Detach()
	err := errors.Join(c.device.Stop(), c.device.Close())
	c.setStatus(StatusEnded)
	if err != nil {
		return fmt.Errorf("capture: release device: %w", err)
	}
	return nil
}
