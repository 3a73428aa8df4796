// Package audio holds the PCM16 primitives of the relay: frames, the frame
// buffer that cuts device output into fixed-size frames, level metering and
// WAV export.
package audio
