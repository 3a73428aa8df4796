package audio

import (
	"bytes"
	"encoding/binary"
)

// NewWavBuffer wraps mono PCM16 data in a 44-byte RIFF/WAVE header.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WavRecorder accumulates PCM16 chunks for later export as a WAV file.
type WavRecorder struct {
	sampleRate int
	pcm        bytes.Buffer
}

// NewWavRecorder creates a recorder for mono PCM16 at sampleRate.
func NewWavRecorder(sampleRate int) *WavRecorder {
	return &WavRecorder{sampleRate: sampleRate}
}

// Write appends a chunk. It never fails.
func (r *WavRecorder) Write(p []byte) (int, error) {
	return r.pcm.Write(p)
}

// Len returns the number of PCM bytes recorded.
func (r *WavRecorder) Len() int {
	return r.pcm.Len()
}

// WAV returns the recording as a complete WAV file.
func (r *WavRecorder) WAV() []byte {
	return NewWavBuffer(r.pcm.Bytes(), r.sampleRate)
}
