package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 24000
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}

	if got := binary.LittleEndian.Uint32(wav[24:28]); got != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d in header, got %d", sampleRate, got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Errorf("Expected PCM payload after header")
	}
}

func TestWavRecorder(t *testing.T) {
	rec := NewWavRecorder(24000)
	rec.Write([]byte{1, 2})
	rec.Write([]byte{3, 4, 5, 6})

	if rec.Len() != 6 {
		t.Errorf("Expected 6 recorded bytes, got %d", rec.Len())
	}

	wav := rec.WAV()
	if len(wav) != 50 {
		t.Errorf("Expected 50 byte WAV, got %d", len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 6 {
		t.Errorf("Expected data chunk size 6, got %d", got)
	}
}
