package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoDevice captures mono PCM16 from the default input device through miniaudio.
type MalgoDevice struct {
	mu           sync.Mutex
	periodFrames uint32
	ctx          *malgo.AllocatedContext
	device       *malgo.Device
}

// NewMalgoDevice creates a capture device delivering periodFrames samples per
// callback. Zero lets the backend choose.
func NewMalgoDevice(periodFrames int) *MalgoDevice {
	return &MalgoDevice{periodFrames: uint32(periodFrames)}
}

func (d *MalgoDevice) Open(sampleRate int, onData func(pcm []byte)) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return 0, fmt.Errorf("malgo: device already open")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return 0, fmt.Errorf("malgo: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = d.periodFrames
	deviceConfig.Alsa.NoMMap = 1 // Better compatibility on some systems

	onSamples := func(_, pInput []byte, frameCount uint32) {
		if pInput == nil || frameCount == 0 {
			return
		}
		n := int(frameCount) * 2
		if n > len(pInput) {
			n = len(pInput)
		}
		onData(pInput[:n])
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return 0, fmt.Errorf("malgo: init device: %w", err)
	}

	d.ctx = mctx
	d.device = device
	return int(device.SampleRate()), nil
}

func (d *MalgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("malgo: device not open")
	}
	return d.device.Start()
}

func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil || !d.device.IsStarted() {
		return nil
	}
	return d.device.Stop()
}

// Close releases the device and its context. Safe to call on a closed device.
func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	var err error
	if d.ctx != nil {
		err = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return err
}
