package audio

import (
	"encoding/binary"
	"time"
)

// Frame is a block of mono PCM16 samples cut by a FrameBuffer.
type Frame struct {
	Mono       []int16
	SampleRate int
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Mono)) * time.Second / time.Duration(f.SampleRate)
}

// Bytes encodes the samples as little-endian PCM16.
func (f Frame) Bytes() []byte {
	return PCM16ToBytes(f.Mono)
}

// PCM16FromBytes decodes little-endian PCM16. A trailing odd byte is ignored.
func PCM16FromBytes(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// PCM16ToBytes encodes samples as little-endian PCM16.
func PCM16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
