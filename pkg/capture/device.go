package capture

// Device is an audio input backend. Open acquires the device at the requested
// sample rate and returns the rate it actually runs at; onData receives raw
// little-endian PCM16 mono bytes on the backend's audio thread once started.
type Device interface {
	Open(sampleRate int, onData func(pcm []byte)) (int, error)
	Start() error
	Stop() error
	Close() error
}
