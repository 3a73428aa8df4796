package audio

import "errors"

var (
	// ErrUnsupportedRate is returned when the pipeline cannot be coerced to the requested sample rate
	ErrUnsupportedRate = errors.New("unsupported sample rate")

	// ErrAlreadyRecording is returned when a frame consumer is registered while another is active
	ErrAlreadyRecording = errors.New("frame consumer already registered")
)
